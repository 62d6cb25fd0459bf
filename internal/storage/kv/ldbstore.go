package kv

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LDBStore is the durable Store implementation backed by goleveldb. The
// transactional contract (locking, deadlock detection, nesting) is layered
// above the database; a top-level commit applies the transaction's writes
// as one atomic batch.
type LDBStore struct {
	store
}

// OpenLDBStore opens (creating if necessary) a leveldb database at path.
func OpenLDBStore(path string) (*LDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open leveldb %s: %w", path, err)
	}
	s := &LDBStore{}
	s.store.be = &ldbBacking{db: db}
	s.store.lt = newLockTable()
	return s, nil
}

// SetLockHook installs the deadlock-injection test hook, as on MemStore.
func (s *LDBStore) SetLockHook(h func(locker uint64, bucket string, key []byte) bool) {
	s.store.lt.setHook(h)
}

// ldbBacking maps buckets onto key prefixes. Bucket names contain no NUL,
// so "bucket\x00key" preserves per-bucket key order and keeps buckets
// disjoint.
type ldbBacking struct {
	db *leveldb.DB
}

func ldbKey(bucket string, key []byte) []byte {
	out := make([]byte, 0, len(bucket)+1+len(key))
	out = append(out, bucket...)
	out = append(out, 0)
	out = append(out, key...)
	return out
}

func (l *ldbBacking) get(bucket string, key []byte) ([]byte, error) {
	v, err := l.db.Get(ldbKey(bucket, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: leveldb get: %w", err)
	}
	return v, nil
}

func (l *ldbBacking) apply(writes map[lockKey]write) error {
	batch := new(leveldb.Batch)
	for lk, w := range writes {
		k := ldbKey(lk.bucket, []byte(lk.key))
		if w.tombstone {
			batch.Delete(k)
		} else {
			batch.Put(k, w.value)
		}
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("kv: leveldb batch write: %w", err)
	}
	return nil
}

func (l *ldbBacking) scan(bucket string) ([]pair, error) {
	prefix := ldbKey(bucket, nil)
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []pair
	for iter.Next() {
		k := string(iter.Key()[len(prefix):])
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, pair{k: k, v: v})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("kv: leveldb scan: %w", err)
	}
	return out, nil
}

func (l *ldbBacking) close() error {
	return l.db.Close()
}
