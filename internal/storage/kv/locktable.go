package kv

import "sync"

// lockMode is the strength of a key lock.
type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

// lockKey addresses one lockable key.
type lockKey struct {
	bucket string
	key    string
}

// lockState tracks the holders of one key lock.
type lockState struct {
	holders map[uint64]lockMode
	cond    *sync.Cond
	waiting int
}

// lockHook is a test hook consulted before every exclusive acquisition.
// Returning true makes the acquisition fail with ErrDeadlock, simulating a
// store-detected lock conflict.
type lockHook func(locker uint64, bucket string, key []byte) bool

// lockTable is a key-level lock manager with wait-for-graph deadlock
// detection. Shared locks are compatible with each other; an exclusive lock
// excludes all other lockers. A locker may upgrade shared to exclusive when
// it is the sole holder.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*lockState
	held  map[uint64]map[lockKey]lockMode

	// waitsFor maps a blocked locker to the lockers it is waiting on.
	waitsFor map[uint64]map[uint64]bool

	hook lockHook
}

func newLockTable() *lockTable {
	return &lockTable{
		locks:    make(map[lockKey]*lockState),
		held:     make(map[uint64]map[lockKey]lockMode),
		waitsFor: make(map[uint64]map[uint64]bool),
	}
}

// acquire takes the lock at (bucket, key) in the given mode for locker,
// blocking until it is granted. Returns ErrDeadlock if waiting would create
// a cycle in the wait-for graph, or if the test hook fires.
func (lt *lockTable) acquire(locker uint64, bucket string, key []byte, mode lockMode) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if mode == lockExclusive && lt.hook != nil && lt.hook(locker, bucket, key) {
		return ErrDeadlock
	}

	lk := lockKey{bucket: bucket, key: string(key)}
	st := lt.locks[lk]
	if st == nil {
		st = &lockState{holders: make(map[uint64]lockMode)}
		st.cond = sync.NewCond(&lt.mu)
		lt.locks[lk] = st
	}

	for {
		if conflicts := lt.conflicting(st, locker, mode); len(conflicts) == 0 {
			break
		} else {
			if lt.wouldDeadlock(locker, conflicts) {
				return ErrDeadlock
			}
			lt.setWaits(locker, conflicts)
			st.waiting++
			st.cond.Wait()
			st.waiting--
			delete(lt.waitsFor, locker)
		}
	}

	if cur, ok := st.holders[locker]; !ok || cur < mode {
		st.holders[locker] = mode
	}
	hm := lt.held[locker]
	if hm == nil {
		hm = make(map[lockKey]lockMode)
		lt.held[locker] = hm
	}
	if cur, ok := hm[lk]; !ok || cur < mode {
		hm[lk] = mode
	}
	return nil
}

// conflicting returns the lockers that prevent the acquisition.
func (lt *lockTable) conflicting(st *lockState, locker uint64, mode lockMode) []uint64 {
	var out []uint64
	for h, m := range st.holders {
		if h == locker {
			continue
		}
		if mode == lockExclusive || m == lockExclusive {
			out = append(out, h)
		}
	}
	return out
}

// wouldDeadlock reports whether any blocking holder transitively waits on
// the requesting locker.
func (lt *lockTable) wouldDeadlock(locker uint64, holders []uint64) bool {
	seen := make(map[uint64]bool)
	var reaches func(from uint64) bool
	reaches = func(from uint64) bool {
		if from == locker {
			return true
		}
		if seen[from] {
			return false
		}
		seen[from] = true
		for next := range lt.waitsFor[from] {
			if reaches(next) {
				return true
			}
		}
		return false
	}
	for _, h := range holders {
		if reaches(h) {
			return true
		}
	}
	return false
}

func (lt *lockTable) setWaits(locker uint64, holders []uint64) {
	set := make(map[uint64]bool, len(holders))
	for _, h := range holders {
		set[h] = true
	}
	lt.waitsFor[locker] = set
}

// releaseAll drops every lock held under the locker identity and wakes
// blocked waiters.
func (lt *lockTable) releaseAll(locker uint64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	delete(lt.waitsFor, locker)
	for lk := range lt.held[locker] {
		st := lt.locks[lk]
		if st == nil {
			continue
		}
		delete(st.holders, locker)
		if st.waiting > 0 {
			st.cond.Broadcast()
		} else if len(st.holders) == 0 {
			delete(lt.locks, lk)
		}
	}
	delete(lt.held, locker)
}

// setHook installs the deadlock-injection test hook.
func (lt *lockTable) setHook(h lockHook) {
	lt.mu.Lock()
	lt.hook = h
	lt.mu.Unlock()
}
