// Package kv defines the transactional key-value store boundary the
// directory engine runs on, together with two implementations: an in-memory
// store used for embedding and tests, and a goleveldb-backed store for
// durable deployments.
//
// The contract the engine relies on:
//
//   - ACID transactions with nested (child) transactions whose abort does
//     not abort the parent.
//   - Key-level locking with deadlock detection. A transaction that loses a
//     deadlock fails with ErrDeadlock; the caller aborts and retries the
//     whole logical operation.
//   - Ordered key enumeration within a bucket.
//
// A transaction is confined to one operation on one goroutine. The locker
// identity correlates engine-level cache locks with store-level key locks.
package kv

import (
	"context"
	"errors"
)

// Store errors.
var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("kv: key not found")
	// ErrDeadlock is the distinguished retryable error. The store reports it
	// when granting a lock would create a wait cycle; the losing transaction
	// must abort and the whole logical operation restarts.
	ErrDeadlock = errors.New("kv: deadlock detected")
	// ErrTxDone is returned when using a transaction after Commit or Abort.
	ErrTxDone = errors.New("kv: transaction already ended")
	// ErrTxHasChild is returned when using a parent transaction while a
	// child transaction is still open.
	ErrTxHasChild = errors.New("kv: child transaction still open")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("kv: store is closed")
)

// Bucket names used by the directory engine. Implementations treat bucket
// names as opaque namespaces.
const (
	BucketDN2ID    = "dn2id"
	BucketID2Entry = "id2entry"
	BucketIndex    = "idx"
	BucketMeta     = "meta"
)

// Store is a transactional key-value store.
type Store interface {
	// Begin starts a new top-level transaction.
	Begin(ctx context.Context) (Txn, error)

	// Close closes the store. Outstanding transactions become invalid.
	Close() error
}

// Txn is a transaction handle. Not safe for concurrent use; each operation
// runs its transaction on a single goroutine.
type Txn interface {
	// LockerID returns the identity under which this transaction (and its
	// children) acquires locks.
	LockerID() uint64

	// Get returns the value stored at key, or ErrKeyNotFound.
	Get(bucket string, key []byte) ([]byte, error)

	// Put stores value at key, acquiring an exclusive lock on it.
	Put(bucket string, key, value []byte) error

	// Delete removes key, acquiring an exclusive lock on it. Deleting a
	// missing key is not an error.
	Delete(bucket string, key []byte) error

	// Cursor returns an ordered cursor over the bucket as seen by this
	// transaction (committed state plus its own uncommitted writes).
	Cursor(bucket string) (Cursor, error)

	// Child starts a nested transaction. The parent must not be used until
	// the child commits or aborts. A child abort discards only the child's
	// writes; its commit is provisional until the top-level commit.
	Child() (Txn, error)

	// Commit makes the transaction's writes visible. For a child this
	// merges into the parent; for a top-level transaction it is durable.
	Commit() error

	// Abort discards the transaction's writes. Top-level abort releases
	// all locks held under the locker identity.
	Abort() error
}

// Cursor iterates a bucket in ascending key order.
type Cursor interface {
	// Seek positions at the first key >= the given key.
	Seek(key []byte) (k, v []byte, ok bool)

	// Next advances and returns the next pair.
	Next() (k, v []byte, ok bool)

	// Close releases the cursor.
	Close()
}
