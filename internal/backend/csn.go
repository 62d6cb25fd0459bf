package backend

import (
	"fmt"
	"sync"
	"time"
)

// csnState tracks a pending CSN through the write path.
type csnState int

const (
	csnPending csnState = iota
	csnCommitted
)

// PendingCSN is one in-flight write's replication bookkeeping record. The
// CSN value is consumed opaquely by replication; only commit ordering
// matters here.
type PendingCSN struct {
	OpID   uint64
	ConnID uint64
	CSN    string

	state csnState
}

// csnList is the per-backend ordered list of in-flight CSNs. Pend order is
// issue order; highestCommitted walks the committed prefix.
type csnList struct {
	mu      sync.Mutex
	seq     uint64
	entries []*PendingCSN
}

func newCSNList() *csnList {
	return &csnList{}
}

// pend issues a CSN for a write about to begin.
func (l *csnList) pend(connID uint64) *PendingCSN {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	p := &PendingCSN{
		OpID:   l.seq,
		ConnID: connID,
		CSN:    fmt.Sprintf("%016x#%06x", time.Now().UTC().UnixNano(), l.seq),
		state:  csnPending,
	}
	l.entries = append(l.entries, p)
	return p
}

// commit marks a pending CSN committed.
func (l *csnList) commit(p *PendingCSN) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.state = csnCommitted
}

// abort withdraws a CSN whose operation failed, and drops any committed
// prefix it was holding back.
func (l *csnList) abort(p *PendingCSN) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == p {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	l.trimLocked()
}

// highestCommitted returns the newest CSN all of whose predecessors have
// committed, "" when none has.
func (l *csnList) highestCommitted() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var highest string
	for _, e := range l.entries {
		if e.state != csnCommitted {
			break
		}
		highest = e.CSN
	}
	l.trimLocked()
	return highest
}

// trimLocked drops the fully committed prefix, keeping the last committed
// entry so its CSN stays reportable.
func (l *csnList) trimLocked() {
	n := 0
	for n < len(l.entries) && l.entries[n].state == csnCommitted {
		n++
	}
	if n > 1 {
		l.entries = l.entries[n-1:]
	}
}
