package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// ModType is a modify change operation per RFC 4511, plus the increment
// extension of RFC 4525.
type ModType int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModType = iota
	// ModDelete removes values, or the whole attribute when no values given.
	ModDelete
	// ModReplace replaces the attribute's values; empty values delete it.
	ModReplace
	// ModIncrement adds an integer delta to a single-valued attribute.
	ModIncrement
)

// Modification is one change within a modify operation.
type Modification struct {
	Type      ModType
	Attribute string
	Values    [][]byte
}

// Modify applies a change list to the entry at dn.
func (b *Backend) Modify(ctx context.Context, dn string, changes []Modification) error {
	return b.ModifyWithBindDN(ctx, dn, changes, "")
}

// ModifyWithBindDN applies a change list, stamping modifiersName with the
// binding DN.
//
// The target is taken write-locked from the cache when present; the change
// list mutates a private clone, which is re-validated, its index changes
// applied (deletions before insertions) inside a child transaction, and
// the cache slot replaced only after the top-level commit.
func (b *Backend) ModifyWithBindDN(ctx context.Context, dn string, changes []Modification, bindDN string) error {
	if strings.TrimSpace(dn) == "" {
		return ErrInvalidDN
	}
	if len(changes) == 0 {
		return nil
	}
	normDN := cache.NormalizeDN(dn)

	pend := b.csn.pend(0)
	err := b.withRetry(ctx, "modify", func(txn kv.Txn) (func(error), error) {
		return b.modifyTxn(txn, normDN, changes, bindDN)
	})
	if err != nil {
		b.csn.abort(pend)
		return err
	}
	b.csn.commit(pend)
	b.log.Debug("entry modified", "dn", normDN, "changes", len(changes))
	return nil
}

// modifyTxn is one attempt of the modify state machine inside txn.
func (b *Backend) modifyTxn(txn kv.Txn, normDN string, changes []Modification, bindDN string) (post func(error), err error) {
	id, err := b.lookupDN(txn, normDN)
	if err != nil {
		return nil, err
	}

	// Prefer the cached entry under its write lock; fall back to the store.
	var old *cache.Entry
	guard, gerr := b.cache.GetForWriteDN(normDN)
	if gerr == nil {
		old = guard.Entry()
		defer func() {
			// The guard survives into the post hook only on success.
			if post == nil {
				guard.Release()
			}
		}()
	} else {
		if old, err = b.fetchEntry(txn, id); err != nil {
			return nil, err
		}
	}

	for _, mod := range changes {
		if !b.access.Allowed(AccessWrite, old, mod.Attribute, nil) {
			return nil, ErrAccessDenied
		}
	}

	updated := old.Clone()
	updated.ID = id
	for _, mod := range changes {
		if err := applyModification(updated, mod); err != nil {
			return nil, err
		}
	}
	SetOperationalAttrs(updated, OpModify, bindDN)

	if err := b.schema.Validate(updated, old.Attributes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	if b.opts.Noop {
		return nil, errNoop
	}

	// The mutate and index maintenance run in a child transaction so a
	// mid-way failure aborts cleanly without discarding the parent.
	child, err := txn.Child()
	if err != nil {
		return nil, fmt.Errorf("backend: begin child transaction: %w", err)
	}
	if err := b.updateIndexes(child, id, old, updated); err != nil {
		_ = child.Abort()
		return nil, err
	}
	if err := child.Put(kv.BucketID2Entry, idKey(id), encodeEntry(updated)); err != nil {
		_ = child.Abort()
		return nil, fmt.Errorf("backend: write entry body: %w", err)
	}
	if err := child.Commit(); err != nil {
		return nil, err
	}

	if guard != nil {
		return func(commitErr error) {
			if commitErr == nil {
				guard.Update(updated)
			}
			guard.Release()
		}, nil
	}
	committed := updated.Clone()
	return func(commitErr error) {
		if commitErr == nil {
			b.cache.Insert(committed)
		}
	}, nil
}

// applyModification applies one change to the working clone.
func applyModification(e *cache.Entry, mod Modification) error {
	attr := strings.ToLower(mod.Attribute)
	if attr == "" {
		return fmt.Errorf("%w: modification without attribute", ErrSchemaViolation)
	}

	switch mod.Type {
	case ModAdd:
		for _, v := range mod.Values {
			e.AddAttributeValue(attr, v)
		}
	case ModDelete:
		if len(mod.Values) == 0 {
			e.DeleteAttribute(attr)
			break
		}
		for _, v := range mod.Values {
			if !e.DeleteAttributeValue(attr, v) {
				return fmt.Errorf("%w: %s has no value %q", ErrSchemaViolation, attr, v)
			}
		}
	case ModReplace:
		if len(mod.Values) == 0 {
			e.DeleteAttribute(attr)
			break
		}
		e.SetAttribute(attr, mod.Values)
	case ModIncrement:
		if len(mod.Values) != 1 {
			return fmt.Errorf("%w: increment takes exactly one delta", ErrSchemaViolation)
		}
		delta, err := strconv.ParseInt(string(mod.Values[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: increment delta %q is not an integer", ErrSchemaViolation, mod.Values[0])
		}
		values := e.GetAttribute(attr)
		if len(values) != 1 {
			return fmt.Errorf("%w: increment needs a single-valued %s", ErrSchemaViolation, attr)
		}
		cur, err := strconv.ParseInt(string(values[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s value %q is not an integer", ErrSchemaViolation, attr, values[0])
		}
		e.SetStringAttribute(attr, strconv.FormatInt(cur+delta, 10))
	default:
		return fmt.Errorf("%w: unknown modification type %d", ErrSchemaViolation, mod.Type)
	}
	return nil
}
