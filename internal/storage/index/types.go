package index

import (
	"bytes"
	"strings"
)

// IndexType represents the type of index for attribute searching.
// Distinct types produce disjoint key spaces for the same attribute.
type IndexType int

const (
	// IndexEquality supports equality searches like (uid=alice).
	IndexEquality IndexType = iota
	// IndexPresence supports presence searches like (mail=*).
	IndexPresence
	// IndexSubstring supports substring searches like (cn=*admin*).
	IndexSubstring
)

// String returns the string representation of an IndexType.
func (t IndexType) String() string {
	switch t {
	case IndexEquality:
		return "equality"
	case IndexPresence:
		return "presence"
	case IndexSubstring:
		return "substring"
	default:
		return "unknown"
	}
}

// Key addresses one ID list in the store: the attribute, the index type,
// and the normalized value component (empty for presence).
type Key struct {
	Attribute string
	Type      IndexType
	Value     []byte
}

// Bytes returns the store key. Attribute names contain no NUL, so
// "attr\x00type\x00value" keeps the per-attribute, per-type key spaces
// disjoint.
func (k Key) Bytes() []byte {
	out := make([]byte, 0, len(k.Attribute)+3+len(k.Value))
	out = append(out, strings.ToLower(k.Attribute)...)
	out = append(out, 0, byte(k.Type), 0)
	out = append(out, k.Value...)
	return out
}

// NormalizeValue normalizes an attribute value for indexing: lowercased
// with surrounding whitespace removed. The same normalization is applied
// at index maintenance and at lookup.
func NormalizeValue(value []byte) []byte {
	return bytes.ToLower(bytes.TrimSpace(value))
}

// EqualityKey returns the key under which an equality match for the value
// is indexed.
func EqualityKey(attr string, value []byte) Key {
	return Key{Attribute: attr, Type: IndexEquality, Value: NormalizeValue(value)}
}

// PresenceKey returns the single per-attribute presence key.
func PresenceKey(attr string) Key {
	return Key{Attribute: attr, Type: IndexPresence}
}

// NgramSize is the substring n-gram width. Substring filters with a
// component shorter than this cannot use the substring index and degrade
// to a full-range candidate set.
const NgramSize = 3

// SubstringKeys returns the keys under which a value is substring-indexed:
// one key per distinct n-gram of the normalized value. A value shorter
// than NgramSize yields a single key holding the whole value.
func SubstringKeys(attr string, value []byte) []Key {
	ngrams := Ngrams(NormalizeValue(value), NgramSize)
	keys := make([]Key, 0, len(ngrams))
	for _, g := range ngrams {
		keys = append(keys, Key{Attribute: attr, Type: IndexSubstring, Value: g})
	}
	return keys
}

// Ngrams generates the distinct n-grams of the given width, preserving
// first-occurrence order. A value shorter than n is returned whole.
func Ngrams(value []byte, n int) [][]byte {
	if len(value) == 0 {
		return nil
	}
	if len(value) < n {
		return [][]byte{append([]byte(nil), value...)}
	}

	seen := make(map[string]struct{}, len(value)-n+1)
	out := make([][]byte, 0, len(value)-n+1)
	for i := 0; i+n <= len(value); i++ {
		g := value[i : i+n]
		if _, ok := seen[string(g)]; ok {
			continue
		}
		seen[string(g)] = struct{}{}
		out = append(out, append([]byte(nil), g...))
	}
	return out
}

// DefaultIndexedAttributes returns the attributes indexed out of the box,
// the ones commonly searched in a directory.
func DefaultIndexedAttributes() map[string][]IndexType {
	return map[string][]IndexType{
		"objectclass": {IndexEquality, IndexPresence},
		"uid":         {IndexEquality, IndexPresence},
		"cn":          {IndexEquality, IndexPresence, IndexSubstring},
		"sn":          {IndexEquality, IndexPresence},
		"mail":        {IndexEquality, IndexPresence, IndexSubstring},
		"memberof":    {IndexEquality, IndexPresence},
	}
}
