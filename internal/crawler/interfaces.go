package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by PostingStore lookups when no row matches.
var ErrNotFound = errors.New("not found")

// TargetStore reads crawl targets and writes their per-pass bookkeeping.
type TargetStore interface {
	SelectActiveTargets(ctx context.Context) ([]CrawlTarget, error)
	UpdateTargetChecked(ctx context.Context, id string) error
	UpdateTargetFingerprint(ctx context.Context, id, digest string) error
	UpdateTargetError(ctx context.Context, id, message string) error
}

// PostingStore persists job postings keyed by canonical URL.
type PostingStore interface {
	GetPostingByURL(ctx context.Context, url string) (JobPosting, error)
	InsertPosting(ctx context.Context, posting JobPosting) error
	UpdatePosting(ctx context.Context, url string, update PostingUpdate) error
}

// Fetcher performs an HTTP GET and returns the body text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Publisher pushes posting-change events to a message bus.
type Publisher interface {
	PublishChange(ctx context.Context, event ChangeEvent) error
}

// Clock abstracts time.Now so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}
