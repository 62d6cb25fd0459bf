// Package cache implements the entry cache: the single authoritative
// in-memory view of recently touched directory entries.
//
// Each cached entry lives in a slot guarded by a reader/writer lock and a
// pin count. Lookups return a Guard that holds the slot lock until
// released; Release is idempotent and callers defer it so the lock is
// dropped on every exit path. Pinned slots are never evicted.
//
// The cache exclusively owns the canonical Entry once inserted. An entry
// enters the cache only after the transaction that persisted it commits,
// so readers can never observe uncommitted state, and a crash or abort
// can never leave a cached entry without a durable counterpart.
package cache
