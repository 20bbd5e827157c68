// Package release defines the core types and collaborator interfaces for
// the author release tracker.
package release

import "time"

// Status is the lifecycle state of a tracked release.
type Status string

// Release status values persisted in the release store.
const (
	StatusAnnounced Status = "announced"
	StatusPreorder  Status = "preorder"
	StatusPublished Status = "published"
	StatusDelayed   Status = "delayed"
)

// Release is a persisted book release discovered for an author.
// (AuthorID, Title) is the sole identity key: a second candidate with the
// same pair gap-fills the first instead of creating a new row.
type Release struct {
	ID            int64      `json:"id"`
	AuthorID      int64      `json:"author_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	SourceURL     string     `json:"source_url,omitempty"`
	AnnouncedDate time.Time  `json:"announced_date"`
	ExpectedDate  *time.Time `json:"expected_date,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Status        Status     `json:"status"`
	Interested    bool       `json:"interested"`
	Notified      bool       `json:"notified"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	LastScrapedAt time.Time  `json:"last_scraped_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Candidate is a transient classifier-scored extraction. It is consumed by
// the persistence decision and discarded, never stored.
type Candidate struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	SourceURL     string     `json:"source_url"`
	AnnouncedDate time.Time  `json:"announced_date"`
	ExpectedDate  *time.Time `json:"expected_date,omitempty"`
	Confidence    float64    `json:"confidence"`
}

// AuthorProfile carries the scraping configuration owned by an author.
type AuthorProfile struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	WebsiteURL    string     `json:"website_url,omitempty"`
	FeedURL       string     `json:"feed_url,omitempty"`
	SocialURLs    []string   `json:"social_urls,omitempty"`
	Favorited     bool       `json:"favorited"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

// Sources reports which scraping sources a profile configures.
func (p AuthorProfile) Sources() SourceSet {
	return SourceSet{
		Website: p.WebsiteURL != "",
		Feed:    p.FeedURL != "",
		Social:  len(p.SocialURLs) > 0,
	}
}

// SourceSet flags the sources attempted (or available) for an author.
type SourceSet struct {
	Website bool `json:"website"`
	Feed    bool `json:"feed"`
	Social  bool `json:"social"`
}

// Any reports whether at least one source is configured.
func (s SourceSet) Any() bool {
	return s.Website || s.Feed || s.Social
}

// OutcomeKind classifies a ScrapeOutcome for callers that branch on the
// failure mode rather than parsing the error text.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeOK          OutcomeKind = "ok"
	OutcomeNotFound    OutcomeKind = "not_found"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeNoSources   OutcomeKind = "no_sources"
	OutcomeFailed      OutcomeKind = "failed"
)

// ScrapeOutcome is the per-author result of a scrape attempt.
type ScrapeOutcome struct {
	AuthorID        int64       `json:"author_id"`
	AuthorName      string      `json:"author_name"`
	Success         bool        `json:"success"`
	Kind            OutcomeKind `json:"kind"`
	Error           string      `json:"error,omitempty"`
	Sources         SourceSet   `json:"sources"`
	NewReleases     int         `json:"new_releases"`
	UpdatedReleases int         `json:"updated_releases"`
	TotalProcessed  int         `json:"total_processed"`
	ScrapedAt       time.Time   `json:"scraped_at"`
}

// BatchOutcome aggregates scrape outcomes over a set of authors.
type BatchOutcome struct {
	TotalAuthors         int             `json:"total_authors"`
	SuccessfulScrapes    int             `json:"successful_scrapes"`
	FailedScrapes        int             `json:"failed_scrapes"`
	TotalNewReleases     int             `json:"total_new_releases"`
	TotalUpdatedReleases int             `json:"total_updated_releases"`
	Results              []ScrapeOutcome `json:"results"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          time.Time       `json:"completed_at"`
}

// PullResult is the outcome of pulling one source (feed or page) for one
// author. A feed-level or page-level failure sets Success=false; per-item
// failures are swallowed upstream.
type PullResult struct {
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	New     []Release `json:"new_releases"`
	Updated []Release `json:"updated_releases"`
}

// Delta reports whether the pull produced any new or updated releases.
func (r PullResult) Delta() bool {
	return len(r.New) > 0 || len(r.Updated) > 0
}

// FetchResponse is the raw result of an HTTP GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
}

// RenderedPage is the output of a headless-browser navigation.
type RenderedPage struct {
	HTML    string
	Title   string
	Markers []MarkerNode
}

// MarkerNode is a DOM element carrying an explicit release data marker
// (data-book, data-release, .js-book and friends), captured after scripts
// have settled.
type MarkerNode struct {
	Text  string `json:"text"`
	HTML  string `json:"html"`
	Class string `json:"class"`
	Tag   string `json:"tag"`
}
