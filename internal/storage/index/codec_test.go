package index

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
	"github.com/KilimcininKorOglu/dizin/internal/storage/kv"
)

func beginTest(t *testing.T) kv.Txn {
	t.Helper()

	store := kv.NewMemStore()
	t.Cleanup(func() { store.Close() })

	txn, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() { txn.Abort() })
	return txn
}

// =============================================================================
// Record round trip
// =============================================================================

func TestEncodeDecodeExplicit(t *testing.T) {
	l, err := idl.FromSorted([]idl.EntryID{1, 7, 9, 1000})
	if err != nil {
		t.Fatalf("FromSorted: %v", err)
	}

	got, err := Decode(Encode(l))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.IsRange() || got.Len() != 4 {
		t.Fatalf("round trip mismatch: range=%v len=%d", got.IsRange(), got.Len())
	}
	for _, id := range []idl.EntryID{1, 7, 9, 1000} {
		if !got.Contains(id) {
			t.Errorf("lost id %d in round trip", id)
		}
	}

	// Byte-level round trip as well.
	if !bytes.Equal(Encode(got), Encode(l)) {
		t.Error("encode(decode(bytes)) != bytes")
	}
}

func TestEncodeDecodeRange(t *testing.T) {
	l := idl.NewRange(10, 500)

	got, err := Decode(Encode(l))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.IsRange() || got.First() != 10 || got.Last() != 500 {
		t.Errorf("round trip mismatch: range=%v [%d,%d]", got.IsRange(), got.First(), got.Last())
	}
}

func TestDecodeCorruption(t *testing.T) {
	word := func(vals ...uint64) []byte {
		out := make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(out[8*i:], v)
		}
		return out
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unaligned", []byte{1, 2, 3}},
		{"count mismatch short", word(3, 10, 20)},
		{"count mismatch long", word(1, 10, 20)},
		{"range wrong width", word(0, 5)},
		{"range inverted", word(0, 50, 5)},
		{"not ascending", word(2, 20, 10)},
		{"duplicate ids", word(2, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("err = %v, want ErrCorruptRecord", err)
			}
		})
	}
}

// =============================================================================
// Key operations
// =============================================================================

func TestInsertIntoKeyCreatesSingleton(t *testing.T) {
	txn := beginTest(t)
	key := EqualityKey("uid", []byte("Alice"))

	if err := InsertIntoKey(txn, key, 42); err != nil {
		t.Fatalf("InsertIntoKey: %v", err)
	}

	list, err := FetchKey(txn, key)
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if list.Len() != 1 || !list.Contains(42) {
		t.Errorf("want singleton {42}, got len %d", list.Len())
	}

	// Lookup is normalization-insensitive.
	list, err = FetchKey(txn, EqualityKey("UID", []byte("  alice ")))
	if err != nil {
		t.Fatalf("FetchKey normalized: %v", err)
	}
	if !list.Contains(42) {
		t.Error("normalized lookup missed the id")
	}
}

func TestInsertIntoKeyIdempotent(t *testing.T) {
	txn := beginTest(t)
	key := EqualityKey("cn", []byte("admin"))

	for i := 0; i < 3; i++ {
		if err := InsertIntoKey(txn, key, 7); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	list, err := FetchKey(txn, key)
	if err != nil {
		t.Fatalf("FetchKey: %v", err)
	}
	if list.Len() != 1 {
		t.Errorf("idempotent insert produced len %d, want 1", list.Len())
	}
}

func TestDeleteFromKeyRemovesEmptyKey(t *testing.T) {
	txn := beginTest(t)
	key := EqualityKey("mail", []byte("a@example.com"))

	if err := InsertIntoKey(txn, key, 5); err != nil {
		t.Fatalf("InsertIntoKey: %v", err)
	}
	if err := DeleteFromKey(txn, key, 5); err != nil {
		t.Fatalf("DeleteFromKey: %v", err)
	}

	// The key must be gone entirely, not stored as an empty record.
	_, err := FetchKey(txn, key)
	if err != kv.ErrKeyNotFound {
		t.Errorf("FetchKey after emptying = %v, want ErrKeyNotFound", err)
	}

	// Deleting again, or deleting a missing member, stays a no-op.
	if err := DeleteFromKey(txn, key, 5); err != nil {
		t.Errorf("repeat delete: %v", err)
	}
}

func TestKeySpacesDisjoint(t *testing.T) {
	eq := EqualityKey("cn", []byte("abc")).Bytes()
	pr := PresenceKey("cn").Bytes()
	sub := Key{Attribute: "cn", Type: IndexSubstring, Value: []byte("abc")}.Bytes()

	if bytes.Equal(eq, sub) {
		t.Error("equality and substring keys collide")
	}
	if bytes.Equal(eq, pr) || bytes.Equal(sub, pr) {
		t.Error("presence key collides with value keys")
	}

	other := EqualityKey("sn", []byte("abc")).Bytes()
	if bytes.Equal(eq, other) {
		t.Error("keys for different attributes collide")
	}
}

// =============================================================================
// N-grams
// =============================================================================

func TestNgrams(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"shorter than n", "ab", []string{"ab"}},
		{"exact", "abc", []string{"abc"}},
		{"sliding", "abcd", []string{"abc", "bcd"}},
		{"dedup", "aaaa", []string{"aaa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ngrams([]byte(tt.value), NgramSize)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d ngrams, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Errorf("ngram[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSubstringKeysNormalize(t *testing.T) {
	a := SubstringKeys("cn", []byte("Admin"))
	b := SubstringKeys("cn", []byte("admin"))
	if len(a) != len(b) {
		t.Fatalf("normalization changed key count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i].Bytes(), b[i].Bytes()) {
			t.Errorf("key %d differs across case", i)
		}
	}
}
