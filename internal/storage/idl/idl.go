package idl

import "errors"

// EntryID identifies one entry in the database. IDs are assigned
// monotonically starting at 1 and are never reused.
type EntryID uint64

// NOID is the reserved "no entry" sentinel. It is returned by cursors at
// end of iteration and must never be stored as a real ID.
const NOID = ^EntryID(0)

// MaxIDs is the maximum number of IDs an explicit list may hold before it
// collapses to the Range form.
const MaxIDs = 131072

// ID list errors.
var (
	// ErrIDPresent is returned by Insert when the ID is already in the list.
	ErrIDPresent = errors.New("idl: id already present")
	// ErrIDNotFound is returned by Delete when the ID is not in the list.
	ErrIDNotFound = errors.New("idl: id not found")
	// ErrNotAscending is returned when a decoded ID sequence is not strictly
	// ascending.
	ErrNotAscending = errors.New("idl: ids not strictly ascending")
)

// IDList is a sorted set of entry IDs, either explicit or Range form.
// The zero value is the canonical empty list.
type IDList struct {
	ids     []EntryID
	isRange bool
	first   EntryID
	last    EntryID
}

// New returns an empty ID list.
func New() *IDList {
	return &IDList{}
}

// NewSingle returns a list containing exactly one ID.
func NewSingle(id EntryID) *IDList {
	return &IDList{ids: []EntryID{id}}
}

// NewRange returns a Range list spanning [first, last].
// first must not exceed last.
func NewRange(first, last EntryID) *IDList {
	if first > last {
		first, last = last, first
	}
	return &IDList{isRange: true, first: first, last: last}
}

// FromSorted builds an explicit list from a strictly ascending ID sequence.
// The slice is copied. Returns ErrNotAscending if the order invariant does
// not hold.
func FromSorted(ids []EntryID) (*IDList, error) {
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			return nil, ErrNotAscending
		}
	}
	l := &IDList{ids: make([]EntryID, len(ids))}
	copy(l.ids, ids)
	return l, nil
}

// Empty returns true if the list contains no candidates.
func (l *IDList) Empty() bool {
	return !l.isRange && len(l.ids) == 0
}

// IsRange returns true if the list is in the compressed Range form.
func (l *IDList) IsRange() bool {
	return l.isRange
}

// Len returns the number of candidate IDs. For a Range this is the width of
// the span, counting unconfirmed members.
func (l *IDList) Len() int {
	if l.isRange {
		return int(l.last - l.first + 1)
	}
	return len(l.ids)
}

// First returns the smallest candidate ID, or NOID for an empty list.
func (l *IDList) First() EntryID {
	if l.isRange {
		return l.first
	}
	if len(l.ids) == 0 {
		return NOID
	}
	return l.ids[0]
}

// Last returns the largest candidate ID, or NOID for an empty list.
func (l *IDList) Last() EntryID {
	if l.isRange {
		return l.last
	}
	if len(l.ids) == 0 {
		return NOID
	}
	return l.ids[len(l.ids)-1]
}

// IDs returns the backing slice of an explicit list. Callers must not
// mutate it. Returns nil for a Range list.
func (l *IDList) IDs() []EntryID {
	if l.isRange {
		return nil
	}
	return l.ids
}

// Clone returns a deep copy of the list.
func (l *IDList) Clone() *IDList {
	c := &IDList{isRange: l.isRange, first: l.first, last: l.last}
	if len(l.ids) > 0 {
		c.ids = make([]EntryID, len(l.ids))
		copy(c.ids, l.ids)
	}
	return c
}

// reset makes l the canonical empty list.
func (l *IDList) reset() {
	l.ids = l.ids[:0]
	l.isRange = false
	l.first = 0
	l.last = 0
}

// setRange collapses l to the Range [first, last].
func (l *IDList) setRange(first, last EntryID) {
	l.ids = l.ids[:0]
	l.isRange = true
	l.first = first
	l.last = last
}

// Search returns the position of id in an explicit list: the index of id if
// present, otherwise the index of the first element greater than id (the
// insertion position). Binary search, O(log n).
func (l *IDList) Search(id EntryID) int {
	lo, hi := 0, len(l.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.ids[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Contains reports whether id is a candidate. For a Range form this is a
// bounds check only; membership is unconfirmed.
func (l *IDList) Contains(id EntryID) bool {
	if l.isRange {
		return id >= l.first && id <= l.last
	}
	pos := l.Search(id)
	return pos < len(l.ids) && l.ids[pos] == id
}

// Insert adds id to the list. Returns ErrIDPresent if the id is already a
// candidate; callers treat that as a no-op so that replaying a partially
// applied index update is safe. If the explicit form would exceed MaxIDs
// the list collapses to the Range spanning the old bounds and the new id.
func (l *IDList) Insert(id EntryID) error {
	if l.isRange {
		if id >= l.first && id <= l.last {
			return ErrIDPresent
		}
		if id < l.first {
			l.first = id
		}
		if id > l.last {
			l.last = id
		}
		return nil
	}

	pos := l.Search(id)
	if pos < len(l.ids) && l.ids[pos] == id {
		return ErrIDPresent
	}

	if len(l.ids) >= MaxIDs {
		first, last := l.ids[0], l.ids[len(l.ids)-1]
		if id < first {
			first = id
		}
		if id > last {
			last = id
		}
		l.setRange(first, last)
		return nil
	}

	l.ids = append(l.ids, 0)
	copy(l.ids[pos+1:], l.ids[pos:])
	l.ids[pos] = id
	return nil
}

// Delete removes id from the list. Returns ErrIDNotFound if the id is not a
// candidate. Deleting the only element of an explicit list yields the
// canonical empty list. For a Range form only the bounds can shrink; an
// interior id is left in place since membership is unconfirmed anyway.
func (l *IDList) Delete(id EntryID) error {
	if l.isRange {
		if id < l.first || id > l.last {
			return ErrIDNotFound
		}
		switch {
		case l.first == l.last:
			l.reset()
		case id == l.first:
			l.first++
		case id == l.last:
			l.last--
		}
		return nil
	}

	pos := l.Search(id)
	if pos >= len(l.ids) || l.ids[pos] != id {
		return ErrIDNotFound
	}
	copy(l.ids[pos:], l.ids[pos+1:])
	l.ids = l.ids[:len(l.ids)-1]
	return nil
}

// Intersect replaces l with the intersection of l and o.
// Range operands intersect exactly with each other; a Range against an
// explicit list keeps the explicit ids inside the Range bounds, since every
// in-bound value is an assumed member of the Range.
func (l *IDList) Intersect(o *IDList) {
	if l.Empty() {
		return
	}
	if o.Empty() {
		l.reset()
		return
	}

	lo := maxID(l.First(), o.First())
	hi := minID(l.Last(), o.Last())
	if lo > hi {
		// Disjoint bounds, nothing in common.
		l.reset()
		return
	}
	if lo == hi {
		// The overlap is a single id. Taken as a candidate without
		// membership confirmation; a false positive here is filtered out
		// when the entry itself is tested.
		l.ids = append(l.ids[:0], lo)
		l.isRange = false
		l.first, l.last = 0, 0
		return
	}

	if l.isRange && o.isRange {
		l.setRange(lo, hi)
		return
	}

	if l.isRange {
		// Keep o's ids that fall inside l's bounds.
		first, last := l.first, l.last
		l.ids = l.ids[:0]
		l.isRange = false
		for _, id := range o.ids {
			if id >= first && id <= last {
				l.ids = append(l.ids, id)
			}
		}
		l.first, l.last = 0, 0
		l.checkDense()
		return
	}

	if o.isRange {
		out := l.ids[:0]
		for _, id := range l.ids {
			if id >= o.first && id <= o.last {
				out = append(out, id)
			}
		}
		l.ids = out
		l.checkDense()
		return
	}

	// Both explicit: merge-walk keeping common ids.
	a, b := l.ids, o.ids
	out := l.ids[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	l.ids = out
}

// checkDense collapses an explicit list whose element count equals its
// bound width into the equivalent Range. The two forms are provably equal,
// and the Range form makes later intersections cheap.
func (l *IDList) checkDense() {
	n := len(l.ids)
	if n < 2 {
		return
	}
	if l.ids[n-1]-l.ids[0] == EntryID(n-1) {
		l.setRange(l.ids[n-1]-EntryID(n-1), l.ids[n-1])
	}
}

// Union replaces l with the union of l and o. If either operand is a Range,
// or the combined size would exceed MaxIDs, the result collapses to the
// Range spanning both operands. The overflow check deliberately counts both
// operands before deduplication; the occasional early collapse near the
// capacity boundary is accepted, since every consumer treats a Range as a
// superset.
func (l *IDList) Union(o *IDList) {
	if o.Empty() {
		return
	}
	if l.Empty() {
		*l = *o.Clone()
		return
	}

	lo := minID(l.First(), o.First())
	hi := maxID(l.Last(), o.Last())

	if l.isRange || o.isRange || len(l.ids)+len(o.ids) > MaxIDs {
		l.setRange(lo, hi)
		return
	}

	// Merge into an auxiliary buffer to avoid quadratic shifting.
	a, b := l.ids, o.ids
	out := make([]EntryID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	l.ids = out
}

func minID(a, b EntryID) EntryID {
	if a < b {
		return a
	}
	return b
}

func maxID(a, b EntryID) EntryID {
	if a > b {
		return a
	}
	return b
}
