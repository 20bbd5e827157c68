package release

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by the stores.
var (
	ErrAuthorNotFound  = errors.New("author not found")
	ErrReleaseNotFound = errors.New("release not found")
	ErrDuplicateTitle  = errors.New("release already exists for author and title")
)

// GapFillPatch carries the fields a gap-fill update may touch. Description
// and ExpectedDate land only where the stored value is currently empty;
// SourceURL and LastScrapedAt are always refreshed.
type GapFillPatch struct {
	Description   string
	ExpectedDate  *time.Time
	SourceURL     string
	LastScrapedAt time.Time
}

// ReleaseFilter selects releases for bulk deletion. All set fields must
// match (AND semantics).
type ReleaseFilter struct {
	AnnouncedBefore *time.Time
	ExpectedBefore  *time.Time
	Statuses        []Status
	PublishedNull   bool
}

// ReleaseStore is the authoritative persisted-release collaborator.
type ReleaseStore interface {
	// FindByAuthorAndTitle returns ErrReleaseNotFound when absent.
	FindByAuthorAndTitle(ctx context.Context, authorID int64, title string) (Release, error)
	// FindByAuthorTitleOrSource matches on title or source URL, as the
	// static scraper does.
	FindByAuthorTitleOrSource(ctx context.Context, authorID int64, title, sourceURL string) (Release, error)
	Create(ctx context.Context, r Release) (Release, error)
	// GapFill updates only currently-empty fields, never overwriting.
	GapFill(ctx context.Context, id int64, patch GapFillPatch) (Release, error)
	DeleteWhere(ctx context.Context, f ReleaseFilter) (int64, error)
	Count(ctx context.Context) (int64, error)
	// CountCreatedSince supports the daily scheduler's recent-release
	// prioritization.
	CountCreatedSince(ctx context.Context, authorID int64, since time.Time) (int64, error)
}

// AuthorStore exposes the author scraping profiles owned by the (external)
// author aggregate.
type AuthorStore interface {
	Get(ctx context.Context, id int64) (AuthorProfile, error)
	ListFavorites(ctx context.Context) ([]AuthorProfile, error)
	SetLastScraped(ctx context.Context, id int64, at time.Time) error
	SetFeedURL(ctx context.Context, id int64, feedURL string) error
}

// Fetcher performs a single HTTP GET and returns the raw body. Transport
// failures are errors; HTTP error statuses come back in the response.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Renderer drives a headless browser for JavaScript-rendered pages. Close
// must be idempotent and must never panic; it is called unconditionally at
// the end of every bulk run.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
	Close() error
}

// Publisher pushes release-discovered events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore persists raw scraped HTML snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
