// Package index implements the index key codec: the mapping between an
// index key (attribute, index type, normalized value) and the ID list
// persisted under it in the key-value store.
//
// One store record holds one whole ID list. The record is an array of
// little-endian 64-bit words: an explicit list is encoded as its count
// followed by the ascending IDs; the compressed Range form is encoded as a
// zero count marker followed by the first and last ID. Records that fail
// the width or count checks are reported as corruption, never silently
// truncated, so a damaged index key can be flagged and rebuilt instead of
// quietly losing candidates.
//
// Insert is idempotent and delete tolerates missing members, so replaying
// a partially applied index update during a deadlock retry is safe. A key
// whose list becomes empty is deleted outright; an empty record is never
// stored.
package index
