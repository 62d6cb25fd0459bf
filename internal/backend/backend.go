package backend

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/KilimcininKorOglu/dizin/internal/logging"
	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/index"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// AccessOp is the right an operation requests from the access controller.
type AccessOp int

const (
	// AccessRead is requested when reading an entry or attribute.
	AccessRead AccessOp = iota
	// AccessWrite is requested when creating, modifying, or deleting.
	AccessWrite
)

// SchemaValidator checks an entry against the schema. prev carries the
// attribute state before a modify, nil for an add.
type SchemaValidator interface {
	Validate(entry *cache.Entry, prev map[string][][]byte) error
}

// AccessController decides whether an operation may touch an entry,
// attribute, or value. attr "" means the entry as a whole; attr "children"
// on a parent guards adding entries beneath it.
type AccessController interface {
	Allowed(op AccessOp, entry *cache.Entry, attr string, value []byte) bool
}

type acceptAllSchema struct{}

func (acceptAllSchema) Validate(*cache.Entry, map[string][][]byte) error { return nil }

type allowAllAccess struct{}

func (allowAllAccess) Allowed(AccessOp, *cache.Entry, string, []byte) bool { return true }

// Backend coordinates writes and searches over the store, the attribute
// indexes, and the entry cache.
type Backend struct {
	store   kv.Store
	cache   *cache.Cache
	opts    Options
	log     logging.Logger
	schema  SchemaValidator
	access  AccessController
	csn     *csnList
	indexed map[string][]index.IndexType
}

// New creates a Backend over the given store. Zero option fields take
// their defaults; schema and access collaborators default to accept-all.
func New(store kv.Store, opts Options) *Backend {
	def := DefaultOptions()
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.IndexedAttributes == nil {
		opts.IndexedAttributes = def.IndexedAttributes
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Backend{
		store:   store,
		cache:   cache.New(opts.CacheSize),
		opts:    opts,
		log:     opts.Logger.WithComponent("backend"),
		schema:  acceptAllSchema{},
		access:  allowAllAccess{},
		csn:     newCSNList(),
		indexed: opts.IndexedAttributes,
	}
}

// SetSchemaValidator replaces the schema collaborator.
func (b *Backend) SetSchemaValidator(v SchemaValidator) {
	if v == nil {
		v = acceptAllSchema{}
	}
	b.schema = v
}

// SetAccessController replaces the access-control collaborator.
func (b *Backend) SetAccessController(a AccessController) {
	if a == nil {
		a = allowAllAccess{}
	}
	b.access = a
}

// Cache returns the entry cache, for embedding callers and tests.
func (b *Backend) Cache() *cache.Cache {
	return b.cache
}

// Close closes the underlying store.
func (b *Backend) Close() error {
	return b.store.Close()
}

// errNoop signals that a noop-mode operation validated successfully; the
// transaction is aborted and success reported without persisting.
var errNoop = errors.New("backend: noop abort")

// withRetry runs fn inside a transaction and commits it. A deadlock aborts
// and restarts fn from scratch with exponential backoff, up to the retry
// budget. When fn succeeds, its post hook runs exactly once after the
// commit attempt with the commit's outcome, so fn can publish to the cache
// on success and release held guards either way.
func (b *Backend) withRetry(ctx context.Context, op string, fn func(kv.Txn) (func(error), error)) error {
	backoff := b.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		txn, err := b.store.Begin(ctx)
		if err != nil {
			return fmt.Errorf("backend: begin transaction: %w", err)
		}

		post, err := fn(txn)
		if err == nil {
			err = txn.Commit()
			if post != nil {
				post(err)
			}
			if err == nil {
				return nil
			}
		}
		_ = txn.Abort()

		if errors.Is(err, errNoop) {
			return nil
		}
		if !errors.Is(err, kv.ErrDeadlock) {
			return err
		}
		if attempt >= b.opts.MaxRetries {
			b.log.Error("retry budget exhausted", "op", op, "attempts", attempt)
			return fmt.Errorf("backend: %s: retry budget exhausted after %d attempts: %w", op, attempt, err)
		}
		b.log.Debug("deadlock, restarting operation", "op", op, "attempt", attempt)
		runtime.Gosched()
		time.Sleep(backoff)
		backoff *= 2
	}
}

// NextID allocates the next entry id in its own short transaction, so id
// allocation never serializes concurrent adds. Allocated ids are never
// reused; an operation that later fails leaves a gap.
func (b *Backend) NextID(ctx context.Context) (idl.EntryID, error) {
	var id idl.EntryID
	err := b.withRetry(ctx, "nextid", func(txn kv.Txn) (func(error), error) {
		next := idl.EntryID(1)
		raw, err := txn.Get(kv.BucketMeta, metaNextIDKey)
		if err == nil {
			if next, err = decodeIDValue(raw); err != nil {
				return nil, err
			}
		} else if err != kv.ErrKeyNotFound {
			return nil, fmt.Errorf("backend: read id counter: %w", err)
		}
		if next == 0 {
			next = 1
		}
		id = next
		return nil, txn.Put(kv.BucketMeta, metaNextIDKey, encodeIDValue(next+1))
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// lastID returns the highest id allocated so far, 0 when none.
func (b *Backend) lastID(txn kv.Txn) (idl.EntryID, error) {
	raw, err := txn.Get(kv.BucketMeta, metaNextIDKey)
	if err == kv.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("backend: read id counter: %w", err)
	}
	next, err := decodeIDValue(raw)
	if err != nil {
		return 0, err
	}
	if next <= 1 {
		return 0, nil
	}
	return next - 1, nil
}

// lookupDN resolves a normalized DN to its entry id.
func (b *Backend) lookupDN(txn kv.Txn, normDN string) (idl.EntryID, error) {
	raw, err := txn.Get(kv.BucketDN2ID, dnKey(normDN))
	if err == kv.ErrKeyNotFound {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotFound, normDN)
	}
	if err != nil {
		return 0, fmt.Errorf("backend: resolve %s: %w", normDN, err)
	}
	return decodeIDValue(raw)
}

// fetchEntry loads an entry body from the store.
func (b *Backend) fetchEntry(txn kv.Txn, id idl.EntryID) (*cache.Entry, error) {
	raw, err := txn.Get(kv.BucketID2Entry, idKey(id))
	if err == kv.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("backend: fetch entry %d: %w", id, err)
	}
	return decodeEntry(id, raw)
}

// childrenList reads a parent's child-id list; missing means no children.
func (b *Backend) childrenList(txn kv.Txn, parentNormDN string) (*idl.IDList, error) {
	raw, err := txn.Get(kv.BucketDN2ID, childrenKey(parentNormDN))
	if err == kv.ErrKeyNotFound {
		return idl.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("backend: read children of %s: %w", parentNormDN, err)
	}
	list, err := index.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: children of %s: %v", ErrCorrupt, parentNormDN, err)
	}
	return list, nil
}

// addChild records id in the parent's child-id list. Idempotent.
func (b *Backend) addChild(txn kv.Txn, parentNormDN string, id idl.EntryID) error {
	list, err := b.childrenList(txn, parentNormDN)
	if err != nil {
		return err
	}
	if err := list.Insert(id); err != nil && err != idl.ErrIDPresent {
		return err
	}
	return txn.Put(kv.BucketDN2ID, childrenKey(parentNormDN), index.Encode(list))
}

// removeChild drops id from the parent's child-id list, deleting the
// record when it empties.
func (b *Backend) removeChild(txn kv.Txn, parentNormDN string, id idl.EntryID) error {
	list, err := b.childrenList(txn, parentNormDN)
	if err != nil {
		return err
	}
	if err := list.Delete(id); err != nil {
		if err == idl.ErrIDNotFound {
			return nil
		}
		return err
	}
	if list.Empty() {
		return txn.Delete(kv.BucketDN2ID, childrenKey(parentNormDN))
	}
	return txn.Put(kv.BucketDN2ID, childrenKey(parentNormDN), index.Encode(list))
}

// HighestCommittedCSN returns the newest CSN whose every predecessor has
// committed, "" when none. Consumed by replication bookkeeping.
func (b *Backend) HighestCommittedCSN() string {
	return b.csn.highestCommitted()
}

// GetEntry returns a copy of the entry at dn, from the cache when present.
func (b *Backend) GetEntry(ctx context.Context, dn string) (*cache.Entry, error) {
	normDN := cache.NormalizeDN(dn)

	if g, err := b.cache.GetForReadDN(normDN); err == nil {
		defer g.Release()
		return g.Entry().Clone(), nil
	}

	txn, err := b.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("backend: begin transaction: %w", err)
	}
	defer txn.Abort()

	id, err := b.lookupDN(txn, normDN)
	if err != nil {
		return nil, err
	}
	return b.fetchEntry(txn, id)
}
