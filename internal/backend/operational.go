package backend

import (
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
)

// Operational attribute names per RFC 4512 / RFC 4530.
const (
	// AttrCreateTimestamp is the creation timestamp of an entry.
	AttrCreateTimestamp = "createTimestamp"
	// AttrModifyTimestamp is the last modification timestamp of an entry.
	AttrModifyTimestamp = "modifyTimestamp"
	// AttrCreatorsName is the DN of the entry creator.
	AttrCreatorsName = "creatorsName"
	// AttrModifiersName is the DN of the last modifier.
	AttrModifiersName = "modifiersName"
	// AttrEntryUUID is the entry's immutable unique identifier.
	AttrEntryUUID = "entryUUID"
)

// OperationType tags which write operation is stamping an entry.
type OperationType int

const (
	// OpAdd is an add operation.
	OpAdd OperationType = iota
	// OpModify is a modify operation.
	OpModify
)

// SetOperationalAttrs stamps an entry's operational attributes. An add
// sets createTimestamp, creatorsName, and a fresh entryUUID; both add and
// modify set modifyTimestamp and modifiersName.
func SetOperationalAttrs(e *cache.Entry, op OperationType, bindDN string) {
	if e == nil {
		return
	}
	now := FormatTimestamp(time.Now())

	if op == OpAdd {
		e.SetStringAttribute(AttrCreateTimestamp, now)
		e.SetStringAttribute(AttrCreatorsName, bindDN)
		e.SetStringAttribute(AttrEntryUUID, uuid.NewString())
	}
	e.SetStringAttribute(AttrModifyTimestamp, now)
	e.SetStringAttribute(AttrModifiersName, bindDN)
}

// FormatTimestamp formats a time as an LDAP GeneralizedTime string,
// e.g. "20260901103000Z".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("20060102150405Z")
}

// ParseTimestamp parses an LDAP GeneralizedTime string. Returns the zero
// time when it does not parse.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse("20060102150405Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
