package kv

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	ldb, err := OpenLDBStore(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb store: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })

	mem := NewMemStore()
	t.Cleanup(func() { mem.Close() })

	return map[string]Store{"mem": mem, "leveldb": ldb}
}

// =============================================================================
// Basic transaction semantics
// =============================================================================

func TestPutGetDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := s.Begin(context.Background())
			require.NoError(t, err)

			require.NoError(t, txn.Put(BucketMeta, []byte("k"), []byte("v1")))

			// Uncommitted write is visible to its own transaction.
			v, err := txn.Get(BucketMeta, []byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), v)

			require.NoError(t, txn.Commit())

			txn, err = s.Begin(context.Background())
			require.NoError(t, err)
			v, err = txn.Get(BucketMeta, []byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), v)

			require.NoError(t, txn.Delete(BucketMeta, []byte("k")))
			_, err = txn.Get(BucketMeta, []byte("k"))
			require.ErrorIs(t, err, ErrKeyNotFound)
			require.NoError(t, txn.Commit())

			txn, err = s.Begin(context.Background())
			require.NoError(t, err)
			_, err = txn.Get(BucketMeta, []byte("k"))
			require.ErrorIs(t, err, ErrKeyNotFound)
			require.NoError(t, txn.Abort())
		})
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := s.Begin(context.Background())
			require.NoError(t, err)
			require.NoError(t, txn.Put(BucketMeta, []byte("gone"), []byte("x")))
			require.NoError(t, txn.Abort())

			txn, err = s.Begin(context.Background())
			require.NoError(t, err)
			defer txn.Abort()
			_, err = txn.Get(BucketMeta, []byte("gone"))
			require.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestUseAfterEnd(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	txn, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	if err := txn.Put(BucketMeta, []byte("k"), nil); err != ErrTxDone {
		t.Errorf("Put after Commit = %v, want ErrTxDone", err)
	}
	if err := txn.Abort(); err != ErrTxDone {
		t.Errorf("Abort after Commit = %v, want ErrTxDone", err)
	}
}

// =============================================================================
// Nested transactions
// =============================================================================

func TestChildCommitMergesIntoParent(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			parent, err := s.Begin(context.Background())
			require.NoError(t, err)

			child, err := parent.Child()
			require.NoError(t, err)
			require.NoError(t, child.Put(BucketMeta, []byte("n"), []byte("nested")))
			require.NoError(t, child.Commit())

			// Provisional: visible through the parent, not committed yet.
			v, err := parent.Get(BucketMeta, []byte("n"))
			require.NoError(t, err)
			require.Equal(t, []byte("nested"), v)

			other, err := s.Begin(context.Background())
			require.NoError(t, err)
			_, err = other.Get(BucketMeta, []byte("n"))
			require.ErrorIs(t, err, ErrKeyNotFound)
			require.NoError(t, other.Abort())

			require.NoError(t, parent.Commit())

			other, err = s.Begin(context.Background())
			require.NoError(t, err)
			defer other.Abort()
			v, err = other.Get(BucketMeta, []byte("n"))
			require.NoError(t, err)
			require.Equal(t, []byte("nested"), v)
		})
	}
}

func TestChildAbortKeepsParent(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	parent, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, parent.Put(BucketMeta, []byte("p"), []byte("kept")))

	child, err := parent.Child()
	require.NoError(t, err)
	require.NoError(t, child.Put(BucketMeta, []byte("c"), []byte("dropped")))
	require.NoError(t, child.Abort())

	// Parent write survives, child write is gone.
	v, err := parent.Get(BucketMeta, []byte("p"))
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), v)
	_, err = parent.Get(BucketMeta, []byte("c"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, parent.Commit())
}

func TestParentBlockedWhileChildOpen(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	parent, err := s.Begin(context.Background())
	require.NoError(t, err)
	child, err := parent.Child()
	require.NoError(t, err)

	if err := parent.Put(BucketMeta, []byte("k"), nil); err != ErrTxHasChild {
		t.Errorf("parent Put with open child = %v, want ErrTxHasChild", err)
	}

	require.NoError(t, child.Abort())
	require.NoError(t, parent.Abort())
}

// =============================================================================
// Cursor
// =============================================================================

func TestCursorOrderAndOverlay(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			setup, err := s.Begin(context.Background())
			require.NoError(t, err)
			require.NoError(t, setup.Put(BucketIndex, []byte("b"), []byte("2")))
			require.NoError(t, setup.Put(BucketIndex, []byte("d"), []byte("4")))
			require.NoError(t, setup.Put(BucketIndex, []byte("a"), []byte("1")))
			require.NoError(t, setup.Commit())

			txn, err := s.Begin(context.Background())
			require.NoError(t, err)
			defer txn.Abort()

			// Uncommitted writes must appear in the cursor view.
			require.NoError(t, txn.Put(BucketIndex, []byte("c"), []byte("3")))
			require.NoError(t, txn.Delete(BucketIndex, []byte("d")))

			cur, err := txn.Cursor(BucketIndex)
			require.NoError(t, err)
			defer cur.Close()

			var keys []string
			for k, _, ok := cur.Seek(nil); ok; k, _, ok = cur.Next() {
				keys = append(keys, string(k))
			}
			require.Equal(t, []string{"a", "b", "c"}, keys)

			k, v, ok := cur.Seek([]byte("b"))
			require.True(t, ok)
			require.True(t, bytes.Equal(k, []byte("b")))
			require.Equal(t, []byte("2"), v)
		})
	}
}

// =============================================================================
// Locking and deadlock detection
// =============================================================================

func TestWriteConflictBlocksUntilCommit(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	t1, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, t1.Put(BucketMeta, []byte("k"), []byte("t1")))

	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t2, err := s.Begin(context.Background())
		require.NoError(t, err)
		close(started)
		// Blocks until t1 releases its exclusive lock.
		require.NoError(t, t2.Put(BucketMeta, []byte("k"), []byte("t2")))
		require.NoError(t, t2.Commit())
	}()

	<-started
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, t1.Commit())
	wg.Wait()

	check, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer check.Abort()
	v, err := check.Get(BucketMeta, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("t2"), v)
}

func TestDeadlockDetected(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	keyA, keyB := []byte("a"), []byte("b")

	// t1 locks a then b; t2 locks b then a. Exactly one must lose with
	// ErrDeadlock, the other must complete.
	var eg errgroup.Group
	var barrier sync.WaitGroup
	barrier.Add(2)
	var deadlocks, commits int
	var mu sync.Mutex

	run := func(first, second []byte) func() error {
		return func() error {
			txn, err := s.Begin(context.Background())
			if err != nil {
				return err
			}
			if err := txn.Put(BucketMeta, first, []byte("x")); err != nil {
				txn.Abort()
				return err
			}
			// Both transactions hold their first lock before either
			// requests its second.
			barrier.Done()
			barrier.Wait()
			err = txn.Put(BucketMeta, second, []byte("x"))
			if errors.Is(err, ErrDeadlock) {
				mu.Lock()
				deadlocks++
				mu.Unlock()
				return txn.Abort()
			}
			if err != nil {
				txn.Abort()
				return err
			}
			mu.Lock()
			commits++
			mu.Unlock()
			return txn.Commit()
		}
	}

	eg.Go(run(keyA, keyB))
	eg.Go(run(keyB, keyA))
	require.NoError(t, eg.Wait())

	require.Equal(t, 1, deadlocks, "exactly one transaction should lose")
	require.Equal(t, 1, commits, "the winner should commit")
}

func TestLockHookInjectsDeadlock(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	fired := false
	s.SetLockHook(func(locker uint64, bucket string, key []byte) bool {
		if !fired && bucket == BucketMeta {
			fired = true
			return true
		}
		return false
	})

	txn, err := s.Begin(context.Background())
	require.NoError(t, err)
	err = txn.Put(BucketMeta, []byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrDeadlock)
	require.NoError(t, txn.Abort())

	// Second attempt goes through.
	txn, err = s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Put(BucketMeta, []byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())
}

// =============================================================================
// Durability (leveldb)
// =============================================================================

func TestLDBReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenLDBStore(dir)
	require.NoError(t, err)
	txn, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Put(BucketID2Entry, []byte{0, 0, 0, 1}, []byte("entry")))
	require.NoError(t, txn.Commit())
	require.NoError(t, s.Close())

	s, err = OpenLDBStore(dir)
	require.NoError(t, err)
	defer s.Close()
	txn, err = s.Begin(context.Background())
	require.NoError(t, err)
	defer txn.Abort()
	v, err := txn.Get(BucketID2Entry, []byte{0, 0, 0, 1})
	require.NoError(t, err)
	require.Equal(t, []byte("entry"), v)
}
