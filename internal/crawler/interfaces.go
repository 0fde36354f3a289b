package crawler

import (
	"context"
	"time"
)

// BlobStore reads and writes stage artifacts and returns a URI on write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Platform describes one community site: how to page its search listing, where its detail
// pages live, and how to normalize a captured detail fragment.
type Platform interface {
	Name() string
	FirstPage() int
	ListingRequest(term string, page int) FetchRequest
	ParseListing(body []byte, now time.Time) (ListingPage, error)
	DetailRequest(id string) FetchRequest
	Capture(body []byte) (string, error)
	Extract(raw RawDocument) (Extraction, error)
}

// TimestampResolver is implemented by platforms whose listing omits publish times.
type TimestampResolver interface {
	ResolveTimestamp(detail []byte) (time.Time, error)
}

// ErrorReporter receives soft and hard failures. Delivery is best-effort.
type ErrorReporter interface {
	Report(ctx context.Context, event ErrorEvent)
}

// RetryPolicy decides whether and when a failed request is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
