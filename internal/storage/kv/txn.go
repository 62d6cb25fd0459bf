package kv

import (
	"context"
	"sort"
	"sync/atomic"
)

// pair is one key/value from a bucket scan.
type pair struct {
	k string
	v []byte
}

// write is one uncommitted mutation.
type write struct {
	value     []byte
	tombstone bool
}

// backing is the committed-state access both store implementations provide.
// Transaction bookkeeping, locking and nesting are shared on top of it.
type backing interface {
	// get reads committed state. Returns ErrKeyNotFound.
	get(bucket string, key []byte) ([]byte, error)

	// apply atomically applies a top-level transaction's writes.
	apply(writes map[lockKey]write) error

	// scan returns the committed pairs of a bucket in ascending key order.
	scan(bucket string) ([]pair, error)

	// close releases backing resources.
	close() error
}

// store is the shared Store implementation over a backing.
type store struct {
	be         backing
	lt         *lockTable
	nextLocker uint64
	closed     atomic.Bool
}

func (s *store) Begin(ctx context.Context) (Txn, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &transaction{
		store:  s,
		locker: atomic.AddUint64(&s.nextLocker, 1),
		writes: make(map[lockKey]write),
	}, nil
}

func (s *store) Close() error {
	if s.closed.Swap(true) {
		return ErrStoreClosed
	}
	return s.be.close()
}

// transaction implements Txn for both store implementations. A child
// transaction shares the parent's locker identity; its writes overlay the
// parent's until it commits (merge into parent) or aborts (discard).
type transaction struct {
	store  *store
	parent *transaction
	child  *transaction
	locker uint64
	writes map[lockKey]write
	done   bool
}

func (t *transaction) LockerID() uint64 { return t.locker }

// usable rejects operations on ended transactions or on a parent whose
// child is still open.
func (t *transaction) usable() error {
	if t.done {
		return ErrTxDone
	}
	if t.child != nil {
		return ErrTxHasChild
	}
	if t.store.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (t *transaction) Get(bucket string, key []byte) ([]byte, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	lk := lockKey{bucket: bucket, key: string(key)}
	for tx := t; tx != nil; tx = tx.parent {
		if w, ok := tx.writes[lk]; ok {
			if w.tombstone {
				return nil, ErrKeyNotFound
			}
			out := make([]byte, len(w.value))
			copy(out, w.value)
			return out, nil
		}
	}
	if err := t.store.lt.acquire(t.locker, bucket, key, lockShared); err != nil {
		return nil, err
	}
	return t.store.be.get(bucket, key)
}

func (t *transaction) Put(bucket string, key, value []byte) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.store.lt.acquire(t.locker, bucket, key, lockExclusive); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.writes[lockKey{bucket: bucket, key: string(key)}] = write{value: v}
	return nil
}

func (t *transaction) Delete(bucket string, key []byte) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.store.lt.acquire(t.locker, bucket, key, lockExclusive); err != nil {
		return err
	}
	t.writes[lockKey{bucket: bucket, key: string(key)}] = write{tombstone: true}
	return nil
}

func (t *transaction) Child() (Txn, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	c := &transaction{
		store:  t.store,
		parent: t,
		locker: t.locker,
		writes: make(map[lockKey]write),
	}
	t.child = c
	return c, nil
}

func (t *transaction) Commit() error {
	if t.done {
		return ErrTxDone
	}
	if t.child != nil {
		return ErrTxHasChild
	}
	t.done = true

	if t.parent != nil {
		// Provisional commit: fold into the parent. Locks stay held under
		// the shared locker identity.
		for lk, w := range t.writes {
			t.parent.writes[lk] = w
		}
		t.parent.child = nil
		return nil
	}

	err := t.store.be.apply(t.writes)
	t.store.lt.releaseAll(t.locker)
	return err
}

func (t *transaction) Abort() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	if t.parent != nil {
		// Child abort discards only the child's writes. The parent keeps
		// its state and its locks.
		t.parent.child = nil
		return nil
	}

	t.store.lt.releaseAll(t.locker)
	return nil
}

// Cursor materializes the transaction's view of a bucket: committed pairs
// overlaid with the uncommitted writes of this transaction chain.
func (t *transaction) Cursor(bucket string) (Cursor, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	pairs, err := t.store.be.scan(bucket)
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]byte, len(pairs))
	for _, p := range pairs {
		merged[p.k] = p.v
	}
	// Apply overlays oldest ancestor first so the innermost write wins.
	var chain []*transaction
	for tx := t; tx != nil; tx = tx.parent {
		chain = append(chain, tx)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for lk, w := range chain[i].writes {
			if lk.bucket != bucket {
				continue
			}
			if w.tombstone {
				delete(merged, lk.key)
			} else {
				merged[lk.key] = w.value
			}
		}
	}

	out := make([]pair, 0, len(merged))
	for k, v := range merged {
		out = append(out, pair{k: k, v: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].k < out[j].k })
	return &sliceCursor{pairs: out, pos: -1}, nil
}

// sliceCursor serves a materialized, sorted bucket view.
type sliceCursor struct {
	pairs []pair
	pos   int
}

func (c *sliceCursor) Seek(key []byte) ([]byte, []byte, bool) {
	k := string(key)
	c.pos = sort.Search(len(c.pairs), func(i int) bool { return c.pairs[i].k >= k })
	return c.current()
}

func (c *sliceCursor) Next() ([]byte, []byte, bool) {
	c.pos++
	return c.current()
}

func (c *sliceCursor) current() ([]byte, []byte, bool) {
	if c.pos < 0 || c.pos >= len(c.pairs) {
		return nil, nil, false
	}
	p := c.pairs[c.pos]
	return []byte(p.k), p.v, true
}

func (c *sliceCursor) Close() {}
