package boss

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a slug with no stored record.
var ErrNotFound = errors.New("boss not found")

// Repository persists boss records keyed by slug.
type Repository interface {
	Upsert(ctx context.Context, rec Record) error
	UpsertBatch(ctx context.Context, recs []Record) (int, error)
	FindBySlug(ctx context.Context, slug string) (Record, error)
	List(ctx context.Context, offset, limit int) ([]Record, error)
	Search(ctx context.Context, query string, offset, limit int) ([]Record, error)
	Count(ctx context.Context) (int, error)
}

// Lock is the cross-process mutex guaranteeing at most one sync run at a time.
type Lock interface {
	Ensure(ctx context.Context) error
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Status(ctx context.Context) (LockStatus, error)
}

// PageLister enumerates the pages of a wiki category.
type PageLister interface {
	ListCategoryMembers(ctx context.Context, category string) ([]PageRef, error)
}

// ContentFetcher retrieves the latest wikitext of a page.
// A missing page or empty revision yields ("", false, nil).
type ContentFetcher interface {
	FetchPageContent(ctx context.Context, pageID int, title string) (string, bool, error)
}

// ImageResolver resolves image filenames to concrete URLs.
// Every deduplicated input filename appears in the result, with a
// placeholder URL when resolution failed.
type ImageResolver interface {
	Resolve(ctx context.Context, filenames []string) map[string]string
}

// DeadLetter is an append-only sink for per-item pipeline failures.
type DeadLetter interface {
	Append(entry DeadLetterEntry) error
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
