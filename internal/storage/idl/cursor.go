package idl

// Cursor is a forward iterator over an ID list. It is owned by the caller;
// one list may have any number of concurrent cursors as long as the list is
// not mutated underneath them.
//
// For a Range list the cursor simply counts first..last without any
// existence check. The caller fetches each candidate entry and may find it
// missing (the id was deleted), which is a normal outcome during candidate
// verification, not an error.
type Cursor struct {
	list *IDList
	pos  int
	cur  EntryID
}

// NewCursor returns a cursor positioned before the first candidate.
func (l *IDList) NewCursor() *Cursor {
	return &Cursor{list: l}
}

// First positions the cursor at the first candidate and returns it, or NOID
// if the list is empty.
func (c *Cursor) First() EntryID {
	l := c.list
	if l.Empty() {
		return NOID
	}
	if l.isRange {
		c.cur = l.first
		return c.cur
	}
	c.pos = 0
	return l.ids[0]
}

// Next advances to the next candidate and returns it, or NOID when the list
// is exhausted.
func (c *Cursor) Next() EntryID {
	l := c.list
	if l.isRange {
		if c.cur >= l.last {
			return NOID
		}
		c.cur++
		return c.cur
	}
	c.pos++
	if c.pos >= len(l.ids) {
		return NOID
	}
	return l.ids[c.pos]
}
