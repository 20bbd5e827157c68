package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/feed"
	"github.com/booktrail/release-crawler/internal/metrics"
	"github.com/booktrail/release-crawler/internal/release"
)

// FeedPuller pulls and validates syndication feeds.
type FeedPuller interface {
	PullReleases(ctx context.Context, authorID int64, feedURL string) feed.Result
	Validate(ctx context.Context, feedURL string) feed.Validation
}

// FeedDetector discovers candidate feed URLs on an author's site.
type FeedDetector interface {
	Detect(ctx context.Context, siteURL string) []string
}

// PageScraper scrapes one author page into persisted releases.
type PageScraper interface {
	ScrapePage(ctx context.Context, authorID int64, url string) release.PullResult
}

// DiscoveredEvent is published for every release a scrape creates.
type DiscoveredEvent struct {
	AuthorID     int64     `json:"author_id"`
	ReleaseID    int64     `json:"release_id"`
	Title        string    `json:"title"`
	SourceURL    string    `json:"source_url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// FeedSetup is the result of configuring an author's feed automatically.
type FeedSetup struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	FeedURL string `json:"feed_url,omitempty"`
}

// OrchestratorConfig tunes pacing and event publication.
type OrchestratorConfig struct {
	Cooldown      time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	ValidateDelay time.Duration
	EventTopic    string
}

// DefaultOrchestratorConfig returns production pacing: an hour between
// scrapes of the same author, 2-5s jitter between authors in a batch.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Cooldown:      time.Hour,
		MinDelay:      2 * time.Second,
		MaxDelay:      5 * time.Second,
		ValidateDelay: time.Second,
		EventTopic:    "release-discovered",
	}
}

// Orchestrator runs every configured source for an author in order: feed,
// then website (static with dynamic fallback), then social. The cooldown
// is advisory and locally enforced; concurrent processes may still overlap.
type Orchestrator struct {
	cfg       OrchestratorConfig
	authors   release.AuthorStore
	feeds     FeedPuller
	detector  FeedDetector
	static    PageScraper
	dynamic   PageScraper
	renderer  release.Renderer
	publisher release.Publisher
	clock     release.Clock
	logger    *zap.Logger
}

// NewOrchestrator builds an Orchestrator. The dynamic scraper, renderer,
// and publisher are optional.
func NewOrchestrator(
	cfg OrchestratorConfig,
	authors release.AuthorStore,
	feeds FeedPuller,
	detector FeedDetector,
	static PageScraper,
	dynamic PageScraper,
	renderer release.Renderer,
	publisher release.Publisher,
	clock release.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.EventTopic == "" {
		cfg.EventTopic = "release-discovered"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		authors:   authors,
		feeds:     feeds,
		detector:  detector,
		static:    static,
		dynamic:   dynamic,
		renderer:  renderer,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// ScrapeAuthor scrapes a single author across all configured sources. The
// last-scraped stamp is written after the attempt regardless of outcome,
// so a failing author still enters cooldown.
func (o *Orchestrator) ScrapeAuthor(ctx context.Context, authorID int64) release.ScrapeOutcome {
	start := time.Now()
	outcome := o.scrapeAuthor(ctx, authorID)
	metrics.ObserveScrape(string(outcome.Kind), time.Since(start))
	metrics.AddReleases(outcome.NewReleases, outcome.UpdatedReleases)
	return outcome
}

func (o *Orchestrator) scrapeAuthor(ctx context.Context, authorID int64) release.ScrapeOutcome {
	now := o.clock.Now()

	author, err := o.authors.Get(ctx, authorID)
	if err != nil {
		kind := release.OutcomeFailed
		if errors.Is(err, release.ErrAuthorNotFound) {
			kind = release.OutcomeNotFound
		}
		return release.ScrapeOutcome{
			AuthorID:   authorID,
			AuthorName: "Unknown",
			Kind:       kind,
			Error:      err.Error(),
			ScrapedAt:  now,
		}
	}

	if author.LastScrapedAt != nil && now.Sub(*author.LastScrapedAt) < o.cfg.Cooldown {
		return release.ScrapeOutcome{
			AuthorID:   authorID,
			AuthorName: author.Name,
			Kind:       release.OutcomeRateLimited,
			Error:      "scraped recently",
			ScrapedAt:  now,
		}
	}

	sources := author.Sources()
	if !sources.Any() {
		return release.ScrapeOutcome{
			AuthorID:   authorID,
			AuthorName: author.Name,
			Kind:       release.OutcomeNoSources,
			Error:      "no scraping sources configured",
			Sources:    sources,
			ScrapedAt:  now,
		}
	}

	var (
		discovered []release.Release
		updated    int
		sourceOK   bool
		failures   []string
	)

	if sources.Feed {
		o.logger.Info("pulling feed",
			zap.Int64("author_id", authorID),
			zap.String("feed", author.FeedURL))
		res := o.feeds.PullReleases(ctx, authorID, author.FeedURL)
		if res.Success {
			sourceOK = true
			discovered = append(discovered, res.New...)
			updated += len(res.Updated)
		} else {
			failures = append(failures, fmt.Sprintf("feed: %s", res.Error))
		}
	}

	if sources.Website {
		o.logger.Info("scraping website",
			zap.Int64("author_id", authorID),
			zap.String("url", author.WebsiteURL))
		res := o.static.ScrapePage(ctx, authorID, author.WebsiteURL)
		if res.Success && !res.Delta() && o.dynamic != nil {
			o.logger.Info("static pass found nothing, rendering",
				zap.Int64("author_id", authorID))
			res = o.dynamic.ScrapePage(ctx, authorID, author.WebsiteURL)
		}
		if res.Success {
			sourceOK = true
			discovered = append(discovered, res.New...)
			updated += len(res.Updated)
		} else {
			failures = append(failures, fmt.Sprintf("website: %s", res.Error))
		}
	}

	if sources.Social {
		// Social scraping is not implemented; the source is recorded so
		// callers can see it was considered.
		o.logger.Info("social sources configured but not scraped",
			zap.Int64("author_id", authorID),
			zap.Int("urls", len(author.SocialURLs)))
	}

	if err := o.authors.SetLastScraped(ctx, authorID, now); err != nil {
		o.logger.Warn("last-scraped stamp failed",
			zap.Int64("author_id", authorID),
			zap.Error(err))
	}

	o.publishDiscovered(ctx, authorID, discovered)

	success := len(discovered) > 0 || updated > 0 || sourceOK
	outcome := release.ScrapeOutcome{
		AuthorID:        authorID,
		AuthorName:      author.Name,
		Success:         success,
		Kind:            release.OutcomeOK,
		Sources:         sources,
		NewReleases:     len(discovered),
		UpdatedReleases: updated,
		TotalProcessed:  len(discovered) + updated,
		ScrapedAt:       now,
	}
	if !success {
		outcome.Kind = release.OutcomeFailed
		outcome.Error = strings.Join(failures, "; ")
	}
	return outcome
}

// ScrapeFavoriteAuthors scrapes every favorited author with at least one
// source, skipping those still in cooldown, sequentially with jitter. The
// browser is closed when the batch ends whether or not it was used.
func (o *Orchestrator) ScrapeFavoriteAuthors(ctx context.Context) (release.BatchOutcome, error) {
	favorites, err := o.authors.ListFavorites(ctx)
	if err != nil {
		return release.BatchOutcome{}, fmt.Errorf("list favorites: %w", err)
	}

	now := o.clock.Now()
	var ids []int64
	for _, a := range favorites {
		if !a.Sources().Any() {
			continue
		}
		if a.LastScrapedAt != nil && now.Sub(*a.LastScrapedAt) < o.cfg.Cooldown {
			continue
		}
		ids = append(ids, a.ID)
	}
	o.logger.Info("favorite scrape batch",
		zap.Int("favorites", len(favorites)),
		zap.Int("eligible", len(ids)))

	return o.scrapeBatch(ctx, ids), nil
}

// ScrapeSpecificAuthors scrapes the given authors in order.
func (o *Orchestrator) ScrapeSpecificAuthors(ctx context.Context, authorIDs []int64) release.BatchOutcome {
	return o.scrapeBatch(ctx, authorIDs)
}

func (o *Orchestrator) scrapeBatch(ctx context.Context, authorIDs []int64) release.BatchOutcome {
	outcome := release.BatchOutcome{
		TotalAuthors: len(authorIDs),
		StartedAt:    o.clock.Now(),
	}
	defer o.closeRenderer()

	for i, id := range authorIDs {
		result := o.scrapeAuthorSafe(ctx, id)
		outcome.Results = append(outcome.Results, result)
		if result.Success {
			outcome.SuccessfulScrapes++
			outcome.TotalNewReleases += result.NewReleases
			outcome.TotalUpdatedReleases += result.UpdatedReleases
		} else {
			outcome.FailedScrapes++
		}

		if i < len(authorIDs)-1 {
			if err := o.jitterSleep(ctx); err != nil {
				o.logger.Warn("batch interrupted", zap.Error(err))
				outcome.FailedScrapes += len(authorIDs) - i - 1
				break
			}
		}
	}

	outcome.CompletedAt = o.clock.Now()
	return outcome
}

// scrapeAuthorSafe converts a panicking scrape into a failed outcome so a
// bad author cannot take down the batch.
func (o *Orchestrator) scrapeAuthorSafe(ctx context.Context, authorID int64) (outcome release.ScrapeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scrape panicked",
				zap.Int64("author_id", authorID),
				zap.Any("panic", r))
			outcome = release.ScrapeOutcome{
				AuthorID:  authorID,
				Kind:      release.OutcomeFailed,
				Error:     fmt.Sprintf("panic: %v", r),
				ScrapedAt: o.clock.Now(),
			}
		}
	}()
	return o.ScrapeAuthor(ctx, authorID)
}

// DetectAndValidateFeeds probes the author's site for feeds and reports
// which of them parse.
func (o *Orchestrator) DetectAndValidateFeeds(ctx context.Context, authorID int64) (detected, valid []string, err error) {
	author, err := o.authors.Get(ctx, authorID)
	if err != nil {
		return nil, nil, err
	}
	if author.WebsiteURL == "" {
		return nil, nil, nil
	}

	detected = o.detector.Detect(ctx, author.WebsiteURL)
	for i, feedURL := range detected {
		validation := o.feeds.Validate(ctx, feedURL)
		if validation.IsValid {
			valid = append(valid, feedURL)
			o.logger.Info("valid feed found",
				zap.Int64("author_id", authorID),
				zap.String("feed", feedURL),
				zap.String("title", validation.Title))
		}
		if i < len(detected)-1 {
			if err := sleepCtx(ctx, o.cfg.ValidateDelay); err != nil {
				return detected, valid, err
			}
		}
	}
	return detected, valid, nil
}

// SetupAuthorFeeds configures the first valid detected feed for an author
// that does not have one yet.
func (o *Orchestrator) SetupAuthorFeeds(ctx context.Context, authorID int64) (FeedSetup, error) {
	author, err := o.authors.Get(ctx, authorID)
	if err != nil {
		return FeedSetup{}, err
	}
	if author.FeedURL != "" {
		return FeedSetup{Success: true, Message: "feed already configured", FeedURL: author.FeedURL}, nil
	}
	if author.WebsiteURL == "" {
		return FeedSetup{Success: false, Message: "no website URL configured"}, nil
	}

	_, valid, err := o.DetectAndValidateFeeds(ctx, authorID)
	if err != nil {
		return FeedSetup{}, err
	}
	if len(valid) == 0 {
		return FeedSetup{Success: false, Message: "no valid feeds found"}, nil
	}

	selected := valid[0]
	if err := o.authors.SetFeedURL(ctx, authorID, selected); err != nil {
		return FeedSetup{}, fmt.Errorf("set feed url: %w", err)
	}
	return FeedSetup{
		Success: true,
		Message: fmt.Sprintf("feed configured: %s", selected),
		FeedURL: selected,
	}, nil
}

func (o *Orchestrator) publishDiscovered(ctx context.Context, authorID int64, releases []release.Release) {
	if o.publisher == nil {
		return
	}
	for _, r := range releases {
		event := DiscoveredEvent{
			AuthorID:     authorID,
			ReleaseID:    r.ID,
			Title:        r.Title,
			SourceURL:    r.SourceURL,
			DiscoveredAt: o.clock.Now(),
		}
		if _, err := o.publisher.Publish(ctx, o.cfg.EventTopic, event); err != nil {
			o.logger.Warn("event publish failed",
				zap.Int64("release_id", r.ID),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) closeRenderer() {
	if o.renderer == nil {
		return
	}
	if err := o.renderer.Close(); err != nil {
		o.logger.Warn("renderer close failed", zap.Error(err))
	}
}

func (o *Orchestrator) jitterSleep(ctx context.Context) error {
	if o.cfg.MaxDelay <= 0 {
		return nil
	}
	delay := o.cfg.MinDelay
	if spread := o.cfg.MaxDelay - o.cfg.MinDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	return sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
