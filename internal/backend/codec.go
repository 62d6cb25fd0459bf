package backend

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/idl"
)

// entryCodecVersion is the first byte of every id2entry record.
const entryCodecVersion = 1

// metaNextIDKey holds the next unallocated entry id in the meta bucket.
var metaNextIDKey = []byte("nextid")

// idKey encodes an entry id as a big-endian id2entry key, so cursor order
// matches numeric id order.
func idKey(id idl.EntryID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

// dnKey is the dn2id key for an entry's normalized DN.
func dnKey(normDN string) []byte {
	return append([]byte("d\x00"), normDN...)
}

// childrenKey is the dn2id key holding a parent's child-id list.
func childrenKey(parentNormDN string) []byte {
	return append([]byte("c\x00"), parentNormDN...)
}

// encodeIDValue encodes an id as a little-endian value, matching the word
// encoding of index records.
func encodeIDValue(id idl.EntryID) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

func decodeIDValue(data []byte) (idl.EntryID, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: id value has %d bytes", ErrCorrupt, len(data))
	}
	return idl.EntryID(binary.LittleEndian.Uint64(data)), nil
}

// encodeEntry serializes an entry body for the id2entry bucket. Attribute
// order is made deterministic so identical entries encode identically.
func encodeEntry(e *cache.Entry) []byte {
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := make([]byte, 0, 256)
	buf = append(buf, entryCodecVersion)
	buf = appendBytes(buf, []byte(e.DN))
	buf = binary.AppendUvarint(buf, uint64(len(names)))
	for _, name := range names {
		values := e.Attributes[name]
		buf = appendBytes(buf, []byte(name))
		buf = binary.AppendUvarint(buf, uint64(len(values)))
		for _, v := range values {
			buf = appendBytes(buf, v)
		}
	}
	return buf
}

// decodeEntry deserializes an id2entry record. Any structural mismatch is
// ErrCorrupt; records are never silently truncated.
func decodeEntry(id idl.EntryID, data []byte) (*cache.Entry, error) {
	if len(data) == 0 || data[0] != entryCodecVersion {
		return nil, fmt.Errorf("%w: entry %d: bad version", ErrCorrupt, id)
	}
	data = data[1:]

	dn, data, err := readBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
	}
	attrCount, data, err := readUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
	}

	e := cache.NewEntry(string(dn))
	e.ID = id
	for i := uint64(0); i < attrCount; i++ {
		name, rest, err := readBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
		}
		valCount, rest, err := readUvarint(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
		}
		values := make([][]byte, 0, valCount)
		for j := uint64(0); j < valCount; j++ {
			var v []byte
			v, rest, err = readBytes(rest)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, id, err)
			}
			values = append(values, v)
		}
		e.Attributes[string(name)] = values
		data = rest
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: entry %d: %d trailing bytes", ErrCorrupt, id, len(data))
	}
	return e, nil
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(data []byte) (b, rest []byte, err error) {
	n, data, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(data)) < n {
		return nil, nil, fmt.Errorf("short field: want %d bytes, have %d", n, len(data))
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

func readUvarint(data []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("bad varint")
	}
	return v, data[n:], nil
}
