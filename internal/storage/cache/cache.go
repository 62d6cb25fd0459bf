package cache

import (
	"container/list"
	"errors"
	"sync"

	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
)

// DefaultMaxSize is the default slot capacity of the cache.
const DefaultMaxSize = 10000

// Cache errors.
var (
	// ErrNotCached is returned when the requested entry has no slot.
	ErrNotCached = errors.New("cache: entry not cached")
	// ErrPinned is returned by Remove when a guard still references the slot.
	ErrPinned = errors.New("cache: entry is pinned")
)

// slot is the lock-guarded holder for one cached entry. The slot lock
// orders readers and writers of the entry; the pin count (guarded by the
// cache lock) keeps the slot alive while any guard references it.
type slot struct {
	mu    sync.RWMutex
	entry *Entry
	pins  int
}

// Cache is the entry cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	byID     map[idl.EntryID]*slot
	byDN     map[string]*slot
	lru      *list.List
	lruIndex map[idl.EntryID]*list.Element
	maxSize  int

	hits   uint64
	misses uint64
}

// New creates a cache holding at most maxSize unpinned entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		byID:     make(map[idl.EntryID]*slot),
		byDN:     make(map[string]*slot),
		lru:      list.New(),
		lruIndex: make(map[idl.EntryID]*list.Element),
		maxSize:  maxSize,
	}
}

// Guard holds a slot lock on behalf of a caller. Release is idempotent;
// callers defer it so the lock drops on every exit path.
type Guard struct {
	c        *Cache
	s        *slot
	write    bool
	released bool
}

// Entry returns the guarded entry. Readers must not mutate it; writers
// mutate only through Update with a private clone.
func (g *Guard) Entry() *Entry {
	return g.s.entry
}

// Write reports whether this guard holds the writer lock.
func (g *Guard) Write() bool {
	return g.write
}

// Update replaces the guarded slot's contents. The caller must hold the
// write guard; the entry becomes cache-owned.
func (g *Guard) Update(e *Entry) {
	if !g.write || g.released {
		panic("cache: Update without a live write guard")
	}
	g.c.mu.Lock()
	old := g.s.entry
	if old.NormDN != e.NormDN {
		delete(g.c.byDN, old.NormDN)
		g.c.byDN[e.NormDN] = g.s
	}
	g.s.entry = e
	g.c.mu.Unlock()
}

// Release drops the slot lock and unpins the slot. Safe to call more than
// once; only the first call has effect.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.write {
		g.s.mu.Unlock()
	} else {
		g.s.mu.RUnlock()
	}
	g.c.mu.Lock()
	g.s.pins--
	g.c.mu.Unlock()
}

// lookup finds and pins a slot under the cache lock.
func (c *Cache) lookup(id idl.EntryID, normDN string, byDN bool) (*slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s *slot
	var ok bool
	if byDN {
		s, ok = c.byDN[normDN]
	} else {
		s, ok = c.byID[id]
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	s.pins++
	if elem, found := c.lruIndex[s.entry.ID]; found {
		c.lru.MoveToFront(elem)
	}
	return s, true
}

func (c *Cache) acquire(s *slot, writeLock bool) *Guard {
	// Block on the slot lock outside the cache lock so a held slot never
	// stalls unrelated lookups.
	if writeLock {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	return &Guard{c: c, s: s, write: writeLock}
}

// GetForRead acquires a reader guard on the entry with the given id.
func (c *Cache) GetForRead(id idl.EntryID) (*Guard, error) {
	s, ok := c.lookup(id, "", false)
	if !ok {
		return nil, ErrNotCached
	}
	return c.acquire(s, false), nil
}

// GetForWrite acquires the writer guard on the entry with the given id.
func (c *Cache) GetForWrite(id idl.EntryID) (*Guard, error) {
	s, ok := c.lookup(id, "", false)
	if !ok {
		return nil, ErrNotCached
	}
	return c.acquire(s, true), nil
}

// GetForReadDN acquires a reader guard by normalized DN.
func (c *Cache) GetForReadDN(normDN string) (*Guard, error) {
	s, ok := c.lookup(0, normDN, true)
	if !ok {
		return nil, ErrNotCached
	}
	return c.acquire(s, false), nil
}

// GetForWriteDN acquires the writer guard by normalized DN.
func (c *Cache) GetForWriteDN(normDN string) (*Guard, error) {
	s, ok := c.lookup(0, normDN, true)
	if !ok {
		return nil, ErrNotCached
	}
	return c.acquire(s, true), nil
}

// Insert adds a committed entry to the cache. Called only after the
// persisting transaction commits. An existing slot for the same id is
// left untouched.
func (c *Cache) Insert(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[e.ID]; exists {
		return
	}
	if len(c.byID) >= c.maxSize {
		c.evictLocked()
	}
	s := &slot{entry: e}
	c.byID[e.ID] = s
	c.byDN[e.NormDN] = s
	c.lruIndex[e.ID] = c.lru.PushFront(e.ID)
}

// Remove evicts the slot for id. Returns ErrPinned while any guard still
// references it.
func (c *Cache) Remove(id idl.EntryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.byID[id]
	if !ok {
		return ErrNotCached
	}
	if s.pins > 0 {
		return ErrPinned
	}
	c.dropLocked(id, s)
	return nil
}

// evictLocked drops the least recently used unpinned slot.
func (c *Cache) evictLocked() {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(idl.EntryID)
		s := c.byID[id]
		if s == nil || s.pins > 0 {
			continue
		}
		c.dropLocked(id, s)
		return
	}
}

func (c *Cache) dropLocked(id idl.EntryID, s *slot) {
	if elem, ok := c.lruIndex[id]; ok {
		c.lru.Remove(elem)
		delete(c.lruIndex, id)
	}
	delete(c.byID, id)
	delete(c.byDN, s.entry.NormDN)
}

// Len returns the number of cached slots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear drops every slot. Only safe when no guards are outstanding.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[idl.EntryID]*slot)
	c.byDN = make(map[string]*slot)
	c.lru.Init()
	c.lruIndex = make(map[idl.EntryID]*list.Element)
	c.hits = 0
	c.misses = 0
}
