package backend

import (
	"time"

	"github.com/KilimcininKorOglu/dizin/internal/logging"
	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
	"github.com/KilimcininKorOglu/dizin/internal/storage/index"
)

// Options configures a Backend.
type Options struct {
	// CacheSize is the entry cache capacity in slots.
	CacheSize int

	// UncheckedLimit caps the candidate set size a search may produce
	// before streaming. 0 disables the check.
	UncheckedLimit int

	// MaxRetries bounds deadlock retries per write operation.
	MaxRetries int

	// RetryBackoff is the initial delay between deadlock retries; it
	// doubles on each attempt.
	RetryBackoff time.Duration

	// Noop makes write operations validate fully, then abort instead of
	// committing, reporting success. Used for dry-run checks.
	Noop bool

	// IndexedAttributes maps attribute names to the index types maintained
	// for them.
	IndexedAttributes map[string][]index.IndexType

	// Logger receives engine diagnostics. Nil means no logging.
	Logger logging.Logger
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		CacheSize:         cache.DefaultMaxSize,
		MaxRetries:        8,
		RetryBackoff:      time.Millisecond,
		IndexedAttributes: index.DefaultIndexedAttributes(),
	}
}
