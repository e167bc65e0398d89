package pipeline

import (
	"context"
	"time"
)

// Cache stores fetched payloads keyed by URL. Get must behave as a miss for
// entries older than the configured TTL. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, payload []byte) error
}

// Fetcher retrieves a document. Implementations consult the cache before
// touching the network and surface *FetchError after exhausting retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Warehouse is the staging/merge load engine over the permanent store.
type Warehouse interface {
	// EnsureSchema idempotently provisions the main and staging tables.
	EnsureSchema(ctx context.Context) error
	// Stage replaces the staging contents with batch.
	Stage(ctx context.Context, batch []MovieRecord) error
	// MergeToMain inserts staged records whose link is not already present
	// in the permanent store and returns the number of inserted rows.
	// Existing rows are never updated or deleted.
	MergeToMain(ctx context.Context) (int64, error)
	// TruncateStaging empties the staging area.
	TruncateStaging(ctx context.Context) error
	Close()
}

// RetryPolicy decides whether and when a failed call is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Limiter blocks until the shared rate budget admits another call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
