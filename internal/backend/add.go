package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// Add creates a new entry and returns its allocated id.
func (b *Backend) Add(ctx context.Context, entry *cache.Entry) (idl.EntryID, error) {
	return b.AddWithBindDN(ctx, entry, "")
}

// AddWithBindDN creates a new entry, stamping operational attributes with
// the binding DN as creator.
//
// The id is allocated once, before the main transaction, and reused across
// deadlock retries. All persistent writes — dn2id mapping, parent child
// list, entry body, attribute indexes — happen inside one transaction; the
// cache learns about the entry only after that transaction commits.
func (b *Backend) AddWithBindDN(ctx context.Context, entry *cache.Entry, bindDN string) (idl.EntryID, error) {
	if entry == nil || strings.TrimSpace(entry.DN) == "" {
		return 0, ErrInvalidDN
	}

	e := entry.Clone()
	e.NormDN = cache.NormalizeDN(e.DN)
	SetOperationalAttrs(e, OpAdd, bindDN)

	if err := b.schema.Validate(e, nil); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	id, err := b.NextID(ctx)
	if err != nil {
		return 0, err
	}
	e.ID = id

	pend := b.csn.pend(0)
	err = b.withRetry(ctx, "add", func(txn kv.Txn) (func(error), error) {
		return b.addTxn(txn, e, id)
	})
	if err != nil {
		b.csn.abort(pend)
		return 0, err
	}
	b.csn.commit(pend)
	b.log.Debug("entry added", "dn", e.NormDN, "id", uint64(id))
	return id, nil
}

// addTxn is one attempt of the add state machine inside txn.
func (b *Backend) addTxn(txn kv.Txn, e *cache.Entry, id idl.EntryID) (func(error), error) {
	// Duplicate DN check.
	if _, err := txn.Get(kv.BucketDN2ID, dnKey(e.NormDN)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryExists, e.NormDN)
	} else if err != kv.ErrKeyNotFound {
		return nil, fmt.Errorf("backend: check %s: %w", e.NormDN, err)
	}

	// Parent checks. An entry with no parent DN is a database suffix.
	parentDN := cache.ParentDN(e.NormDN)
	var parent *cache.Entry
	if parentDN != "" {
		pid, err := b.lookupDN(txn, parentDN)
		if err != nil {
			return nil, err
		}
		if parent, err = b.fetchEntry(txn, pid); err != nil {
			return nil, err
		}
		if kind := nonHoldingKind(parent); kind != "" {
			return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidParent, parentDN, kind)
		}
	}
	if !b.access.Allowed(AccessWrite, parent, "children", nil) {
		return nil, ErrAccessDenied
	}

	// Persist: dn2id, then the entry body, then the attribute indexes.
	if err := txn.Put(kv.BucketDN2ID, dnKey(e.NormDN), encodeIDValue(id)); err != nil {
		return nil, fmt.Errorf("backend: write dn2id: %w", err)
	}
	if parentDN != "" {
		if err := b.addChild(txn, parentDN, id); err != nil {
			return nil, err
		}
	}
	if err := txn.Put(kv.BucketID2Entry, idKey(id), encodeEntry(e)); err != nil {
		return nil, fmt.Errorf("backend: write entry body: %w", err)
	}
	if err := b.insertIndexes(txn, e, id); err != nil {
		return nil, err
	}

	if b.opts.Noop {
		return nil, errNoop
	}

	committed := e.Clone()
	return func(commitErr error) {
		if commitErr == nil {
			b.cache.Insert(committed)
		}
	}, nil
}

// nonHoldingKind reports why an entry cannot hold children, "" when it can.
func nonHoldingKind(e *cache.Entry) string {
	for _, oc := range e.GetAttribute("objectclass") {
		switch strings.ToLower(string(oc)) {
		case "referral":
			return "referral"
		case "alias":
			return "alias"
		case "ldapsubentry", "subentry":
			return "subentry"
		}
	}
	return ""
}
