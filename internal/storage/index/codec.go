package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

// Codec errors.
var (
	// ErrCorruptRecord is returned when a stored ID list record fails its
	// structural checks. The affected key should be flagged and rebuilt;
	// the codec never repairs silently.
	ErrCorruptRecord = errors.New("index: corrupt id list record")
)

const wordSize = 8

// rangeMarker is the leading word that denotes the Range encoding.
const rangeMarker = uint64(0)

// Encode serializes an ID list. An explicit list becomes
// [count, id0, id1, ...]; a Range becomes [0, first, last]. An empty list
// has no encoding — empty lists are expressed by deleting the key.
func Encode(l *idl.IDList) []byte {
	if l.IsRange() {
		out := make([]byte, 3*wordSize)
		binary.LittleEndian.PutUint64(out[0:], rangeMarker)
		binary.LittleEndian.PutUint64(out[wordSize:], uint64(l.First()))
		binary.LittleEndian.PutUint64(out[2*wordSize:], uint64(l.Last()))
		return out
	}

	ids := l.IDs()
	out := make([]byte, (1+len(ids))*wordSize)
	binary.LittleEndian.PutUint64(out[0:], uint64(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(out[(1+i)*wordSize:], uint64(id))
	}
	return out
}

// Decode deserializes an ID list record, rejecting records whose byte
// length is not word-aligned, whose id count mismatches the declared
// count, or whose ids are not strictly ascending.
func Decode(data []byte) (*idl.IDList, error) {
	if len(data) == 0 || len(data)%wordSize != 0 {
		return nil, fmt.Errorf("%w: length %d not word aligned", ErrCorruptRecord, len(data))
	}
	words := len(data) / wordSize

	count := binary.LittleEndian.Uint64(data[0:])
	if count == rangeMarker {
		if words != 3 {
			return nil, fmt.Errorf("%w: range record has %d words, want 3", ErrCorruptRecord, words)
		}
		first := idl.EntryID(binary.LittleEndian.Uint64(data[wordSize:]))
		last := idl.EntryID(binary.LittleEndian.Uint64(data[2*wordSize:]))
		if first > last {
			return nil, fmt.Errorf("%w: inverted range [%d,%d]", ErrCorruptRecord, first, last)
		}
		return idl.NewRange(first, last), nil
	}

	if uint64(words-1) != count {
		return nil, fmt.Errorf("%w: declared %d ids, record holds %d", ErrCorruptRecord, count, words-1)
	}
	ids := make([]idl.EntryID, words-1)
	for i := range ids {
		ids[i] = idl.EntryID(binary.LittleEndian.Uint64(data[(1+i)*wordSize:]))
	}
	l, err := idl.FromSorted(ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return l, nil
}

// FetchKey reads the ID list stored under key within the transaction.
// Returns kv.ErrKeyNotFound when the key has never been written (callers
// treat that as the empty candidate set).
func FetchKey(txn kv.Txn, key Key) (*idl.IDList, error) {
	data, err := txn.Get(kv.BucketIndex, key.Bytes())
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// InsertIntoKey adds id to the list stored under key, creating the key as
// a singleton if absent. Inserting an id already present is a success, not
// an error, so re-applying a partially failed update during deadlock retry
// is safe. The list collapses to Range form on overflow before writing.
func InsertIntoKey(txn kv.Txn, key Key, id idl.EntryID) error {
	list, err := FetchKey(txn, key)
	switch {
	case err == kv.ErrKeyNotFound:
		list = idl.NewSingle(id)
	case err != nil:
		return err
	default:
		if err := list.Insert(id); err == idl.ErrIDPresent {
			return nil
		} else if err != nil {
			return err
		}
	}
	return txn.Put(kv.BucketIndex, key.Bytes(), Encode(list))
}

// DeleteFromKey removes id from the list stored under key. A missing key
// or a missing member is a no-op, mirroring InsertIntoKey's idempotence.
// When the list becomes empty the key is deleted entirely rather than
// storing an empty record.
func DeleteFromKey(txn kv.Txn, key Key, id idl.EntryID) error {
	list, err := FetchKey(txn, key)
	if err == kv.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := list.Delete(id); err == idl.ErrIDNotFound {
		return nil
	} else if err != nil {
		return err
	}
	if list.Empty() {
		return txn.Delete(kv.BucketIndex, key.Bytes())
	}
	return txn.Put(kv.BucketIndex, key.Bytes(), Encode(list))
}
