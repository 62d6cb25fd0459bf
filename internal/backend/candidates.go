package backend

import (
	"strings"

	"github.com/KilimcininKorOglu/dizin/internal/filter"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/index"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// candidates turns a search's base, scope, and filter into an id list that
// is always a superset of the true result. exact reports whether every
// candidate is already known to lie inside the requested scope.
func (b *Backend) candidates(txn kv.Txn, baseDN string, req *SearchRequest, lastID idl.EntryID) (list *idl.IDList, exact bool, err error) {
	baseID, err := b.lookupDN(txn, baseDN)
	if err != nil {
		return nil, false, err
	}

	switch req.Scope {
	case ScopeBase:
		return idl.NewSingle(baseID), true, nil

	case ScopeOneLevel:
		kids, err := b.childrenList(txn, baseDN)
		if err != nil {
			return nil, false, err
		}
		if req.Filter == nil {
			return kids, !kids.IsRange(), nil
		}
		fc, err := b.filterCandidates(txn, req.Filter, lastID)
		if err != nil {
			return nil, false, err
		}
		kids.Intersect(fc)
		// Intersection shortcuts can admit ids outside the child list,
		// so scope is re-checked while streaming.
		return kids, false, nil

	default: // ScopeSubtree
		// Index lookups are database-wide; scope is re-checked per entry.
		fc, err := b.filterCandidates(txn, req.Filter, lastID)
		if err != nil {
			return nil, false, err
		}
		return fc, false, nil
	}
}

// filterCandidates resolves a filter tree to candidate ids through the
// attribute indexes. AND intersects, OR unions; a leaf without a usable
// index degrades to the full id range so the result stays a superset.
func (b *Backend) filterCandidates(txn kv.Txn, f *filter.Filter, lastID idl.EntryID) (*idl.IDList, error) {
	full := func() *idl.IDList {
		if lastID == 0 {
			return idl.New()
		}
		return idl.NewRange(1, lastID)
	}
	if f == nil {
		return full(), nil
	}

	switch f.Type {
	case filter.FilterAnd:
		result := full()
		for _, child := range f.Children {
			c, err := b.filterCandidates(txn, child, lastID)
			if err != nil {
				return nil, err
			}
			result.Intersect(c)
			if result.Empty() {
				break
			}
		}
		return result, nil

	case filter.FilterOr:
		result := idl.New()
		for _, child := range f.Children {
			c, err := b.filterCandidates(txn, child, lastID)
			if err != nil {
				return nil, err
			}
			result.Union(c)
		}
		return result, nil

	case filter.FilterEquality:
		if !b.hasIndex(f.Attribute, index.IndexEquality) {
			return full(), nil
		}
		return b.fetchCandidates(txn, index.EqualityKey(f.Attribute, f.Value))

	case filter.FilterPresent:
		if !b.hasIndex(f.Attribute, index.IndexPresence) {
			return full(), nil
		}
		return b.fetchCandidates(txn, index.PresenceKey(f.Attribute))

	case filter.FilterSubstring:
		if f.Substring == nil || !b.hasIndex(f.Attribute, index.IndexSubstring) {
			return full(), nil
		}
		return b.substringCandidates(txn, f.Substring, full)

	default:
		// Not, ordering, approximate, and extensible filters are not
		// index-assisted; every id stays a candidate.
		return full(), nil
	}
}

// substringCandidates intersects the n-gram index lookups of a substring
// pattern. Components shorter than a full n-gram constrain nothing; the
// exact predicate filters them during streaming.
func (b *Backend) substringCandidates(txn kv.Txn, sf *filter.SubstringFilter, full func() *idl.IDList) (*idl.IDList, error) {
	components := make([][]byte, 0, len(sf.Any)+2)
	if len(sf.Initial) > 0 {
		components = append(components, sf.Initial)
	}
	components = append(components, sf.Any...)
	if len(sf.Final) > 0 {
		components = append(components, sf.Final)
	}

	var result *idl.IDList
	for _, comp := range components {
		norm := index.NormalizeValue(comp)
		if len(norm) < index.NgramSize {
			continue
		}
		for _, gram := range index.Ngrams(norm, index.NgramSize) {
			list, err := b.fetchCandidates(txn, index.Key{
				Attribute: sf.Attribute,
				Type:      index.IndexSubstring,
				Value:     gram,
			})
			if err != nil {
				return nil, err
			}
			if result == nil {
				result = list
			} else {
				result.Intersect(list)
			}
			if result.Empty() {
				return result, nil
			}
		}
	}
	if result == nil {
		return full(), nil
	}
	return result, nil
}

// fetchCandidates reads one index key; a missing key is the empty set.
func (b *Backend) fetchCandidates(txn kv.Txn, key index.Key) (*idl.IDList, error) {
	list, err := index.FetchKey(txn, key)
	if err == kv.ErrKeyNotFound {
		return idl.New(), nil
	}
	if err != nil {
		return nil, wrapIndexErr(key.Attribute, err)
	}
	return list, nil
}

// candidateCount is the number of ids a candidate set makes the streamer
// consider; for a Range that is the full span, membership unconfirmed.
func candidateCount(l *idl.IDList) int {
	if l.IsRange() {
		return int(l.Last()-l.First()) + 1
	}
	return l.Len()
}

// hasIndex reports whether an attribute carries the given index type.
func (b *Backend) hasIndex(attr string, t index.IndexType) bool {
	for _, have := range b.indexed[strings.ToLower(attr)] {
		if have == t {
			return true
		}
	}
	return false
}
