package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher is the HTTP/HTML capability consumed by workers. Both operations
// fail with a transport error on network failure, timeout, or non-2xx status.
type Fetcher interface {
	Probe(ctx context.Context, address string) (ProbeResult, error)
	Fetch(ctx context.Context, address string) (FetchResult, error)
}

// Prober is the probe half of Fetcher, used by fetchers that delegate it.
type Prober interface {
	Probe(ctx context.Context, address string) (ProbeResult, error)
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher digests report artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes session notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ResultStore persists session summaries and per-page results.
type ResultStore interface {
	CreateSession(ctx context.Context, session SessionRecord) error
	RecordPage(ctx context.Context, page PageRecord) error
	FinishSession(ctx context.Context, sessionID string, finishedAt time.Time) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListPages(ctx context.Context, sessionID string) ([]PageRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
