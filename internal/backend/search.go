package backend

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KilimcininKorOglu/dizin/internal/filter"
	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// Scope is the LDAP search scope.
type Scope int

const (
	// ScopeBase matches only the base entry.
	ScopeBase Scope = iota
	// ScopeOneLevel matches the base entry's immediate children.
	ScopeOneLevel
	// ScopeSubtree matches the base entry and everything beneath it.
	ScopeSubtree
)

// SearchRequest describes one search operation.
type SearchRequest struct {
	BaseDN string
	Scope  Scope
	Filter *filter.Filter

	// SizeLimit caps emitted entries; 0 means unlimited. Exceeding it ends
	// the search with ErrSizeLimitExceeded after the limit was filled.
	SizeLimit int

	// TimeLimit bounds the search wall-clock time; 0 means unlimited.
	TimeLimit time.Duration

	// TypesOnly strips attribute values, returning only attribute names.
	TypesOnly bool

	// Attributes selects which attributes to return; empty or "*" means
	// all, "1.1" means none.
	Attributes []string

	// Abandoned, when set, is polled every candidate; a true value stops
	// the search silently.
	Abandoned *atomic.Bool

	// OnReferral, when set, receives the DN of referral entries found under
	// a non-base scope instead of filter-testing them.
	OnReferral func(dn string) error
}

// SendFunc receives one matching entry. The entry is the caller's to keep.
// A non-nil error stops the search and is returned from Search.
type SendFunc func(*cache.Entry) error

// Search streams entries matching the request to send. It returns nil on
// a complete result; ErrSizeLimitExceeded and ErrTimeLimitExceeded mark a
// valid partial result.
func (b *Backend) Search(ctx context.Context, req *SearchRequest, send SendFunc) error {
	if req == nil || send == nil {
		return fmt.Errorf("backend: nil search request")
	}
	baseDN := cache.NormalizeDN(req.BaseDN)

	txn, err := b.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("backend: begin transaction: %w", err)
	}
	defer txn.Abort()

	lastID, err := b.lastID(txn)
	if err != nil {
		return err
	}
	cand, exactScope, err := b.candidates(txn, baseDN, req, lastID)
	if err != nil {
		return err
	}

	// The unchecked limit guards against scans of huge candidate sets
	// before any entry is fetched.
	if b.opts.UncheckedLimit > 0 && candidateCount(cand) > b.opts.UncheckedLimit {
		return fmt.Errorf("%w: %d unchecked candidates", ErrAdminLimitExceeded, candidateCount(cand))
	}

	var deadline time.Time
	if req.TimeLimit > 0 {
		deadline = time.Now().Add(req.TimeLimit)
	}

	sent := 0
	cur := cand.NewCursor()
	for id := cur.First(); id != idl.NOID; id = cur.Next() {
		if req.Abandoned != nil && req.Abandoned.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrTimeLimitExceeded
		}

		err := b.streamOne(txn, req, baseDN, exactScope, id, send, &sent)
		if err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// SearchCollect runs Search and gathers the result. The returned slice is
// valid alongside a size or time limit error.
func (b *Backend) SearchCollect(ctx context.Context, req *SearchRequest) ([]*cache.Entry, error) {
	var out []*cache.Entry
	err := b.Search(ctx, req, func(e *cache.Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// streamOne verifies one candidate and emits it if it matches. The read
// guard, when one is taken, is released on every path.
func (b *Backend) streamOne(txn kv.Txn, req *SearchRequest, baseDN string, exactScope bool,
	id idl.EntryID, send SendFunc, sent *int) error {

	e, release, err := b.readEntry(txn, id)
	if err != nil {
		return err
	}
	if e == nil {
		// A Range candidate may name an id that no longer exists.
		return nil
	}
	defer release()

	if !exactScope && !matchesScope(e.NormDN, baseDN, req.Scope) {
		return nil
	}
	if req.Scope != ScopeBase && isReferral(e) {
		if req.OnReferral != nil {
			return req.OnReferral(e.DN)
		}
		return nil
	}
	if !b.access.Allowed(AccessRead, e, "", nil) {
		return nil
	}
	if req.Filter != nil && !filter.Matches(req.Filter, e) {
		return nil
	}
	if req.SizeLimit > 0 && *sent >= req.SizeLimit {
		return ErrSizeLimitExceeded
	}

	out := b.buildResult(e, req)
	*sent++
	return send(out)
}

// readEntry fetches a candidate entry: from the cache pinned under a read
// guard, or from the store on a miss. A nil entry means the id does not
// exist, which is a normal outcome for approximate candidates.
func (b *Backend) readEntry(txn kv.Txn, id idl.EntryID) (*cache.Entry, func(), error) {
	if g, err := b.cache.GetForRead(id); err == nil {
		return g.Entry(), g.Release, nil
	}

	raw, err := txn.Get(kv.BucketID2Entry, idKey(id))
	if err == kv.ErrKeyNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("backend: fetch entry %d: %w", id, err)
	}
	e, err := decodeEntry(id, raw)
	if err != nil {
		return nil, nil, err
	}
	b.cache.Insert(e.Clone())
	return e, func() {}, nil
}

// buildResult copies the entry with the requested attributes, applying
// value-level read access control.
func (b *Backend) buildResult(e *cache.Entry, req *SearchRequest) *cache.Entry {
	out := cache.NewEntry(e.DN)
	out.ID = e.ID

	for name, values := range e.Attributes {
		if !requestedAttribute(req.Attributes, name) {
			continue
		}
		if req.TypesOnly {
			out.Attributes[name] = nil
			continue
		}
		kept := make([][]byte, 0, len(values))
		for _, v := range values {
			if !b.access.Allowed(AccessRead, e, name, v) {
				continue
			}
			kept = append(kept, append([]byte(nil), v...))
		}
		if len(kept) > 0 {
			out.Attributes[name] = kept
		}
	}
	return out
}

// requestedAttribute applies the RFC 4511 attribute selection list.
func requestedAttribute(selection []string, attr string) bool {
	if len(selection) == 0 {
		return true
	}
	for _, s := range selection {
		switch s {
		case "*":
			return true
		case "1.1":
			return false
		}
		if strings.EqualFold(s, attr) {
			return true
		}
	}
	return false
}

// matchesScope reports whether a normalized DN falls inside the scope
// anchored at baseDN. An empty baseDN is the database root.
func matchesScope(normDN, baseDN string, scope Scope) bool {
	switch scope {
	case ScopeBase:
		return normDN == baseDN
	case ScopeOneLevel:
		return cache.ParentDN(normDN) == baseDN
	default:
		if normDN == baseDN || baseDN == "" {
			return true
		}
		return strings.HasSuffix(normDN, ","+baseDN)
	}
}

func isReferral(e *cache.Entry) bool {
	for _, oc := range e.GetAttribute("objectclass") {
		if strings.EqualFold(string(oc), "referral") {
			return true
		}
	}
	return false
}
