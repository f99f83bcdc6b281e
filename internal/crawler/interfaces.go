package crawler

import (
	"context"
	"io"
	"time"
)

// Renderer drives a browser tab for sites whose listings are built client side.
type Renderer interface {
	Navigate(ctx context.Context, url string) error
	// WaitForElements blocks up to timeout for selector to match. It returns
	// ErrTimeout when the wait elapses.
	WaitForElements(ctx context.Context, selector string, timeout time.Duration) ([]Node, error)
}

// DocumentFetcher retrieves and parses server-rendered pages.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (*Document, error)
}

// Normalizer canonicalizes product names before storage.
type Normalizer interface {
	Normalize(raw string) string
}

// Site is one catalog variant: it knows how to discover categories, paginate
// them, and turn a listing node into a ProductRecord.
type Site interface {
	Name() string
	KeyField() KeyField
	Frontier(ctx context.Context) ([]Category, error)
	// PageCount loads the first page of cat and returns its page total. A
	// returned error means the category itself is unreachable.
	PageCount(ctx context.Context, cat Category) (int, error)
	Items(ctx context.Context, cat Category, page int) ([]Node, error)
	Extract(ctx context.Context, cat Category, item Node) (ProductRecord, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes export notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests for exported artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
