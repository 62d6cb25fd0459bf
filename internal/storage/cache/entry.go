package cache

import (
	"strings"

	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
)

// Entry is a directory entry as materialized in memory. The cache owns the
// canonical copy once inserted; writers operate on a private clone until
// their transaction commits.
type Entry struct {
	// ID is the entry's unique, monotonically assigned identifier.
	ID idl.EntryID

	// DN is the distinguished name as written.
	DN string

	// NormDN is the normalized DN used for lookups and as the dn2id key.
	NormDN string

	// Attributes contains the entry's attribute values.
	// Key is the attribute name (lowercase), value is a slice of values.
	Attributes map[string][][]byte
}

// NewEntry creates a new Entry with the given DN.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:         dn,
		NormDN:     NormalizeDN(dn),
		Attributes: make(map[string][][]byte),
	}
}

// NormalizeDN normalizes a DN for consistent storage and lookup.
func NormalizeDN(dn string) string {
	return strings.TrimSpace(strings.ToLower(dn))
}

// ParentDN returns the normalized DN of the entry's parent, or "" for a
// single-RDN DN (a database suffix).
func ParentDN(normDN string) string {
	// RDN values may contain escaped commas; an escaped comma never splits.
	for i := 0; i < len(normDN); i++ {
		if normDN[i] == ',' && (i == 0 || normDN[i-1] != '\\') {
			return strings.TrimSpace(normDN[i+1:])
		}
	}
	return ""
}

// GetAttribute returns the values for the given attribute name.
func (e *Entry) GetAttribute(name string) [][]byte {
	if e.Attributes == nil {
		return nil
	}
	return e.Attributes[strings.ToLower(name)]
}

// HasAttribute returns true if the entry has the given attribute.
func (e *Entry) HasAttribute(name string) bool {
	if e.Attributes == nil {
		return false
	}
	_, ok := e.Attributes[strings.ToLower(name)]
	return ok
}

// SetAttribute sets the values for the given attribute name.
func (e *Entry) SetAttribute(name string, values [][]byte) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][][]byte)
	}
	e.Attributes[strings.ToLower(name)] = values
}

// SetStringAttribute sets string values for the given attribute name.
func (e *Entry) SetStringAttribute(name string, values ...string) {
	byteValues := make([][]byte, len(values))
	for i, v := range values {
		byteValues[i] = []byte(v)
	}
	e.SetAttribute(name, byteValues)
}

// AddAttributeValue appends a value to the given attribute.
func (e *Entry) AddAttributeValue(name string, value []byte) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][][]byte)
	}
	name = strings.ToLower(name)
	e.Attributes[name] = append(e.Attributes[name], value)
}

// DeleteAttribute removes the attribute entirely.
func (e *Entry) DeleteAttribute(name string) {
	delete(e.Attributes, strings.ToLower(name))
}

// DeleteAttributeValue removes one value from the attribute; the attribute
// disappears when its last value is removed.
func (e *Entry) DeleteAttributeValue(name string, value []byte) bool {
	name = strings.ToLower(name)
	values := e.Attributes[name]
	for i, v := range values {
		if string(v) == string(value) {
			e.Attributes[name] = append(values[:i], values[i+1:]...)
			if len(e.Attributes[name]) == 0 {
				delete(e.Attributes, name)
			}
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := &Entry{
		ID:         e.ID,
		DN:         e.DN,
		NormDN:     e.NormDN,
		Attributes: make(map[string][][]byte, len(e.Attributes)),
	}
	for k, v := range e.Attributes {
		values := make([][]byte, len(v))
		for i, val := range v {
			values[i] = make([]byte, len(val))
			copy(values[i], val)
		}
		clone.Attributes[k] = values
	}
	return clone
}

// CloneAttributes deep-copies just the attribute map, for a writer's
// private mutable copy.
func (e *Entry) CloneAttributes() map[string][][]byte {
	out := make(map[string][][]byte, len(e.Attributes))
	for k, v := range e.Attributes {
		values := make([][]byte, len(v))
		for i, val := range v {
			values[i] = make([]byte, len(val))
			copy(values[i], val)
		}
		out[k] = values
	}
	return out
}
