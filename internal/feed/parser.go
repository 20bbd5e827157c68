package feed

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/classify"
	"github.com/booktrail/release-crawler/internal/release"
)

const (
	// recentMonths bounds how far back feed items are considered.
	recentMonths = 6
	// maxDescriptionLen caps stored release descriptions.
	maxDescriptionLen = 500
)

// Source parses a feed URL into gofeed's normalized representation. It is
// a seam so tests can serve XML from httptest instead of the open web.
type Source interface {
	ParseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

// GofeedSource is the production Source backed by gofeed.
type GofeedSource struct {
	parser *gofeed.Parser
}

// NewGofeedSource builds a Source with the given User-Agent.
func NewGofeedSource(userAgent string) *GofeedSource {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	return &GofeedSource{parser: p}
}

// ParseURL fetches and parses the feed.
func (s *GofeedSource) ParseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	return s.parser.ParseURLWithContext(feedURL, ctx)
}

// Validation is the result of probing a candidate feed URL.
type Validation struct {
	IsValid bool   `json:"is_valid"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Info carries feed-level metadata alongside a pull result.
type Info struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// Result is a pull result plus the feed metadata it came from.
type Result struct {
	release.PullResult
	Feed Info `json:"feed,omitempty"`
}

// Parser extracts candidate releases from feed items and persists the
// qualifying ones.
type Parser struct {
	source     Source
	releases   release.ReleaseStore
	classifier *classify.Classifier
	clock      release.Clock
	logger     *zap.Logger
}

// NewParser builds a Parser.
func NewParser(
	source Source,
	releases release.ReleaseStore,
	classifier *classify.Classifier,
	clock release.Clock,
	logger *zap.Logger,
) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		source:     source,
		releases:   releases,
		classifier: classifier,
		clock:      clock,
		logger:     logger,
	}
}

// Validate parses the feed; a successful parse implies validity.
func (p *Parser) Validate(ctx context.Context, feedURL string) Validation {
	feed, err := p.source.ParseURL(ctx, feedURL)
	if err != nil {
		return Validation{IsValid: false, Error: err.Error()}
	}
	title := feed.Title
	if title == "" {
		title = "Unknown Feed"
	}
	return Validation{IsValid: true, Title: title}
}

// PullReleases parses the feed and upserts book-like items for the author.
// Items older than six months are skipped (undated items are kept). A
// feed-level failure yields Success=false; per-item failures are swallowed.
func (p *Parser) PullReleases(ctx context.Context, authorID int64, feedURL string) Result {
	feed, err := p.source.ParseURL(ctx, feedURL)
	if err != nil {
		return Result{PullResult: release.PullResult{Success: false, Error: err.Error()}}
	}

	now := p.clock.Now()
	cutoff := now.AddDate(0, -recentMonths, 0)
	result := Result{
		PullResult: release.PullResult{Success: true},
		Feed: Info{
			Title:       feed.Title,
			Description: feed.Description,
			LastUpdated: feed.Updated,
		},
	}

	for _, item := range feed.Items {
		if item == nil || item.Title == "" {
			continue
		}
		published := itemPublished(item)
		if published != nil && published.Before(cutoff) {
			continue
		}
		if err := p.processItem(ctx, authorID, feedURL, item, published, now, &result); err != nil {
			p.logger.Debug("feed item skipped",
				zap.String("feed", feedURL),
				zap.String("item", item.Title),
				zap.Error(err))
		}
	}
	return result
}

func (p *Parser) processItem(
	ctx context.Context,
	authorID int64,
	feedURL string,
	item *gofeed.Item,
	published *time.Time,
	now time.Time,
	result *Result,
) error {
	snippet := itemSnippet(item)
	score := p.classifier.Classify(item.Title, snippet)
	if !score.BookLike {
		return nil
	}

	title := classify.CleanTitle(item.Title)
	if title == "" {
		return nil
	}
	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = feedURL
	}
	expected := classify.ExtractExpectedDate(item.Title, snippet, now)
	announced := now
	if published != nil {
		announced = *published
	}

	existing, err := p.releases.FindByAuthorAndTitle(ctx, authorID, title)
	switch {
	case errors.Is(err, release.ErrReleaseNotFound):
		created, err := p.releases.Create(ctx, release.Release{
			AuthorID:      authorID,
			Title:         title,
			Description:   truncate(snippet, maxDescriptionLen),
			SourceURL:     sourceURL,
			AnnouncedDate: announced,
			ExpectedDate:  expected,
			Status:        release.StatusAnnounced,
			Interested:    true,
			LastScrapedAt: now,
		})
		if err != nil {
			return err
		}
		result.New = append(result.New, created)
	case err != nil:
		return err
	case expected != nil && existing.ExpectedDate == nil:
		updated, err := p.releases.GapFill(ctx, existing.ID, release.GapFillPatch{
			ExpectedDate:  expected,
			SourceURL:     sourceURL,
			LastScrapedAt: now,
		})
		if err != nil {
			return err
		}
		result.Updated = append(result.Updated, updated)
	}
	return nil
}

func itemPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func itemSnippet(item *gofeed.Item) string {
	if item.Description != "" {
		return stripHTML(item.Description)
	}
	return stripHTML(item.Content)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stripHTML removes tags and collapses whitespace, enough to turn feed
// content into classifier input.
func stripHTML(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	s := b.String()
	for entity, plain := range map[string]string{
		"&nbsp;": " ", "&amp;": "&", "&lt;": "<", "&gt;": ">", "&quot;": `"`, "&#39;": "'",
	} {
		s = strings.ReplaceAll(s, entity, plain)
	}
	return strings.Join(strings.Fields(s), " ")
}
