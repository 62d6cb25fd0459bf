package backend

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/index"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// insertIndexes writes every index key for the entry's indexed attributes.
// InsertIntoKey is idempotent, so re-running after a deadlock retry is safe.
func (b *Backend) insertIndexes(txn kv.Txn, e *cache.Entry, id idl.EntryID) error {
	for attr, types := range b.indexed {
		values := e.GetAttribute(attr)
		if len(values) == 0 {
			continue
		}
		if err := b.applyIndexKeys(txn, attr, types, values, id, index.InsertIntoKey); err != nil {
			return err
		}
	}
	return nil
}

// deleteIndexes removes every index key for the entry's indexed attributes.
func (b *Backend) deleteIndexes(txn kv.Txn, e *cache.Entry, id idl.EntryID) error {
	for attr, types := range b.indexed {
		values := e.GetAttribute(attr)
		if len(values) == 0 {
			continue
		}
		if err := b.applyIndexKeys(txn, attr, types, values, id, index.DeleteFromKey); err != nil {
			return err
		}
	}
	return nil
}

// updateIndexes reconciles the indexes for one entry across a modify.
// Deletions for dropped values are applied before insertions for new ones;
// both happen in the same transaction, so the intermediate state is never
// visible to other transactions.
func (b *Backend) updateIndexes(txn kv.Txn, id idl.EntryID, old, updated *cache.Entry) error {
	for attr, types := range b.indexed {
		oldVals := old.GetAttribute(attr)
		newVals := updated.GetAttribute(attr)

		removed := diffValues(oldVals, newVals)
		added := diffValues(newVals, oldVals)
		if len(removed) == 0 && len(added) == 0 {
			continue
		}

		for _, t := range types {
			switch t {
			case index.IndexPresence:
				if len(oldVals) > 0 && len(newVals) == 0 {
					if err := index.DeleteFromKey(txn, index.PresenceKey(attr), id); err != nil {
						return wrapIndexErr(attr, err)
					}
				}
			case index.IndexEquality:
				for _, v := range removed {
					if err := index.DeleteFromKey(txn, index.EqualityKey(attr, v), id); err != nil {
						return wrapIndexErr(attr, err)
					}
				}
			case index.IndexSubstring:
				for _, v := range removed {
					for _, key := range index.SubstringKeys(attr, v) {
						if err := index.DeleteFromKey(txn, key, id); err != nil {
							return wrapIndexErr(attr, err)
						}
					}
				}
			}
		}

		for _, t := range types {
			switch t {
			case index.IndexPresence:
				if len(newVals) > 0 {
					if err := index.InsertIntoKey(txn, index.PresenceKey(attr), id); err != nil {
						return wrapIndexErr(attr, err)
					}
				}
			case index.IndexEquality:
				for _, v := range added {
					if err := index.InsertIntoKey(txn, index.EqualityKey(attr, v), id); err != nil {
						return wrapIndexErr(attr, err)
					}
				}
			case index.IndexSubstring:
				for _, v := range added {
					for _, key := range index.SubstringKeys(attr, v) {
						if err := index.InsertIntoKey(txn, key, id); err != nil {
							return wrapIndexErr(attr, err)
						}
					}
				}
			}
		}
	}
	return nil
}

// applyIndexKeys runs op for every key an attribute's values generate.
func (b *Backend) applyIndexKeys(txn kv.Txn, attr string, types []index.IndexType,
	values [][]byte, id idl.EntryID, op func(kv.Txn, index.Key, idl.EntryID) error) error {
	for _, t := range types {
		switch t {
		case index.IndexPresence:
			if err := op(txn, index.PresenceKey(attr), id); err != nil {
				return wrapIndexErr(attr, err)
			}
		case index.IndexEquality:
			for _, v := range values {
				if err := op(txn, index.EqualityKey(attr, v), id); err != nil {
					return wrapIndexErr(attr, err)
				}
			}
		case index.IndexSubstring:
			for _, v := range values {
				for _, key := range index.SubstringKeys(attr, v) {
					if err := op(txn, key, id); err != nil {
						return wrapIndexErr(attr, err)
					}
				}
			}
		}
	}
	return nil
}

// diffValues returns the values of a that are not in b, compared after
// index normalization so case changes do not churn index keys.
func diffValues(a, b [][]byte) [][]byte {
	if len(a) == 0 {
		return nil
	}
	have := make(map[string]bool, len(b))
	for _, v := range b {
		have[string(index.NormalizeValue(v))] = true
	}
	var out [][]byte
	for _, v := range a {
		if !have[string(index.NormalizeValue(v))] {
			out = append(out, v)
		}
	}
	return out
}

func wrapIndexErr(attr string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, index.ErrCorruptRecord) {
		return fmt.Errorf("%w: index %s: %v", ErrCorrupt, attr, err)
	}
	return fmt.Errorf("backend: index %s: %w", attr, err)
}
