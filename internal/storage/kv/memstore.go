package kv

import (
	"sort"
	"sync"
)

// MemStore is the in-memory Store implementation. It provides the full
// transactional contract (locking, deadlock detection, nested transactions)
// without durability, and is the store used for embedding and tests.
type MemStore struct {
	store
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	s := &MemStore{}
	s.store.be = &memBacking{buckets: make(map[string]map[string][]byte)}
	s.store.lt = newLockTable()
	return s
}

// SetLockHook installs a hook consulted before every exclusive lock
// acquisition. Returning true fails the acquisition with ErrDeadlock. Used
// by tests to force the deadlock-retry path deterministically.
func (s *MemStore) SetLockHook(h func(locker uint64, bucket string, key []byte) bool) {
	s.store.lt.setHook(h)
}

// memBacking holds committed state as per-bucket maps.
type memBacking struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func (m *memBacking) get(bucket string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.buckets[bucket]
	if b == nil {
		return nil, ErrKeyNotFound
	}
	v, ok := b[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memBacking) apply(writes map[lockKey]write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for lk, w := range writes {
		b := m.buckets[lk.bucket]
		if b == nil {
			if w.tombstone {
				continue
			}
			b = make(map[string][]byte)
			m.buckets[lk.bucket] = b
		}
		if w.tombstone {
			delete(b, lk.key)
		} else {
			b[lk.key] = w.value
		}
	}
	return nil
}

func (m *memBacking) scan(bucket string) ([]pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.buckets[bucket]
	out := make([]pair, 0, len(b))
	for k, v := range b {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, pair{k: k, v: cp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].k < out[j].k })
	return out, nil
}

func (m *memBacking) close() error { return nil }
