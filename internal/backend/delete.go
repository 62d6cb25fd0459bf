package backend

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// Delete removes a leaf entry: its attribute indexes, entry body, child
// list membership, and DN mapping, in one transaction. Entries that still
// have children are refused.
func (b *Backend) Delete(ctx context.Context, dn string) error {
	if strings.TrimSpace(dn) == "" {
		return ErrInvalidDN
	}
	normDN := cache.NormalizeDN(dn)

	pend := b.csn.pend(0)
	err := b.withRetry(ctx, "delete", func(txn kv.Txn) (func(error), error) {
		return b.deleteTxn(txn, normDN)
	})
	if err != nil {
		b.csn.abort(pend)
		return err
	}
	b.csn.commit(pend)
	b.log.Debug("entry deleted", "dn", normDN)
	return nil
}

func (b *Backend) deleteTxn(txn kv.Txn, normDN string) (func(error), error) {
	id, err := b.lookupDN(txn, normDN)
	if err != nil {
		return nil, err
	}
	entry, err := b.fetchEntry(txn, id)
	if err != nil {
		return nil, err
	}
	if !b.access.Allowed(AccessWrite, entry, "", nil) {
		return nil, ErrAccessDenied
	}

	kids, err := b.childrenList(txn, normDN)
	if err != nil {
		return nil, err
	}
	if !kids.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowedOnNonLeaf, normDN)
	}

	if err := b.deleteIndexes(txn, entry, id); err != nil {
		return nil, err
	}
	if err := txn.Delete(kv.BucketID2Entry, idKey(id)); err != nil {
		return nil, fmt.Errorf("backend: delete entry body: %w", err)
	}
	if parentDN := cache.ParentDN(normDN); parentDN != "" {
		if err := b.removeChild(txn, parentDN, id); err != nil {
			return nil, err
		}
	}
	if err := txn.Delete(kv.BucketDN2ID, dnKey(normDN)); err != nil {
		return nil, fmt.Errorf("backend: delete dn2id: %w", err)
	}
	if err := txn.Delete(kv.BucketDN2ID, childrenKey(normDN)); err != nil {
		return nil, fmt.Errorf("backend: delete children record: %w", err)
	}

	if b.opts.Noop {
		return nil, errNoop
	}
	return func(commitErr error) {
		if commitErr == nil {
			b.evictDeleted(id)
		}
	}, nil
}

// evictDeleted drops a deleted entry's cache slot, waiting out transient
// reader pins.
func (b *Backend) evictDeleted(id idl.EntryID) {
	for i := 0; i < 64; i++ {
		err := b.cache.Remove(id)
		if err != cache.ErrPinned {
			return
		}
		runtime.Gosched()
	}
	b.log.Warn("deleted entry still pinned in cache", "id", uint64(id))
}
