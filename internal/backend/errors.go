package backend

import "errors"

// Backend errors. Store-level failures are translated into this taxonomy
// at the coordinator boundary; callers never see store-specific errors.
var (
	// ErrInvalidDN is returned when a DN is empty or malformed.
	ErrInvalidDN = errors.New("backend: invalid DN")
	// ErrEntryExists is returned when adding a DN that is already present.
	ErrEntryExists = errors.New("backend: entry already exists")
	// ErrEntryNotFound is returned when a required entry is absent.
	ErrEntryNotFound = errors.New("backend: entry not found")
	// ErrInvalidParent is returned when the parent entry cannot hold
	// children (referral, alias, or subentry).
	ErrInvalidParent = errors.New("backend: parent cannot hold children")
	// ErrNotAllowedOnNonLeaf is returned when deleting an entry that still
	// has children.
	ErrNotAllowedOnNonLeaf = errors.New("backend: entry has children")
	// ErrSchemaViolation is returned when the schema validator rejects an
	// entry. Never retried.
	ErrSchemaViolation = errors.New("backend: schema violation")
	// ErrAccessDenied is returned when the access controller refuses the
	// operation.
	ErrAccessDenied = errors.New("backend: insufficient access")
	// ErrAdminLimitExceeded is returned when the unchecked candidate set
	// exceeds the administrative limit.
	ErrAdminLimitExceeded = errors.New("backend: administrative limit exceeded")
	// ErrSizeLimitExceeded is returned when a search hits its size limit.
	// Entries streamed before the limit are still valid.
	ErrSizeLimitExceeded = errors.New("backend: size limit exceeded")
	// ErrTimeLimitExceeded is returned when a search runs past its time
	// limit. Entries streamed before the deadline are still valid.
	ErrTimeLimitExceeded = errors.New("backend: time limit exceeded")
	// ErrCorrupt is returned when a stored record fails to decode. The
	// affected key is reported, never silently repaired.
	ErrCorrupt = errors.New("backend: corrupt record")
)
