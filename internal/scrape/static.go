// Package scrape turns fetched author pages into persisted releases.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/classify"
	"github.com/booktrail/release-crawler/internal/metrics"
	"github.com/booktrail/release-crawler/internal/release"
)

const (
	maxStaticCandidates = 10
	maxDescriptionLen   = 500
)

// contentSelectors cover the page regions where authors announce books:
// general content areas, book-specific blocks, blog posts, and hero banners.
var contentSelectors = []string{
	"article", ".post", ".entry", ".content", ".news-item",
	".announcement", ".update", ".release", ".book",
	".book-announcement", ".new-release", ".upcoming-book",
	".book-info", ".publication", ".title-info",
	".blog-post", ".news-post", ".press-release",
	".hero", ".banner", ".featured", ".highlight",
}

var titleSelectors = []string{
	"h1", "h2", "h3", ".title", ".headline", ".book-title", ".entry-title",
}

var descriptionSelectors = []string{
	"p", ".description", ".excerpt", ".summary", ".content",
}

// StaticScraper extracts release candidates from plain fetched HTML.
type StaticScraper struct {
	fetcher    release.Fetcher
	releases   release.ReleaseStore
	classifier *classify.Classifier
	snapshots  release.BlobStore
	clock      release.Clock
	logger     *zap.Logger

	snapshotPrefix      string
	snapshotContentType string
}

// NewStaticScraper builds a StaticScraper. The snapshot store is optional;
// nil disables page archiving.
func NewStaticScraper(
	fetcher release.Fetcher,
	releases release.ReleaseStore,
	classifier *classify.Classifier,
	snapshots release.BlobStore,
	clock release.Clock,
	logger *zap.Logger,
) *StaticScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticScraper{
		fetcher:    fetcher,
		releases:   releases,
		classifier: classifier,
		snapshots:  snapshots,
		clock:      clock,
		logger:     logger,

		snapshotPrefix:      "snapshots",
		snapshotContentType: "text/html; charset=utf-8",
	}
}

// ConfigureSnapshots overrides where archived pages land and the content
// type they are stored under.
func (s *StaticScraper) ConfigureSnapshots(prefix, contentType string) {
	if prefix != "" {
		s.snapshotPrefix = prefix
	}
	if contentType != "" {
		s.snapshotContentType = contentType
	}
}

// ScrapePage fetches the author's page and persists qualifying candidates.
// Transport failures and non-2xx statuses yield Success=false.
func (s *StaticScraper) ScrapePage(ctx context.Context, authorID int64, websiteURL string) release.PullResult {
	resp, err := s.fetcher.Fetch(ctx, websiteURL)
	if err != nil {
		return release.PullResult{Success: false, Error: err.Error()}
	}
	metrics.ObservePageFetch(websiteURL, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return release.PullResult{Success: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	s.archive(ctx, authorID, websiteURL, resp.Body)

	candidates := s.ExtractCandidates(resp.Body, websiteURL)
	return s.persist(ctx, authorID, candidates, s.classifier.Config().StaticThreshold)
}

// ExtractCandidates parses HTML and returns deduplicated candidates above
// the candidate threshold, best-first, capped at ten.
func (s *StaticScraper) ExtractCandidates(html []byte, baseURL string) []release.Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		s.logger.Debug("unparseable html", zap.String("url", baseURL), zap.Error(err))
		return nil
	}

	minConfidence := s.classifier.Config().CandidateThreshold
	var out []release.Candidate
	seen := make(map[string]struct{})

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if text == "" {
				return
			}
			title := extractTitle(el)
			if title == "" {
				return
			}
			score := s.classifier.Classify(title, text)
			if score.Confidence < minConfidence {
				return
			}
			clean := classify.CleanTitle(title)
			if clean == "" {
				return
			}
			key := classify.NormalizeTitle(clean)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}

			out = append(out, release.Candidate{
				Title:        clean,
				Description:  extractDescription(el, text),
				SourceURL:    extractLink(el, baseURL),
				ExpectedDate: classify.ExtractDate(text),
				Confidence:   score.Confidence,
			})
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxStaticCandidates {
		out = out[:maxStaticCandidates]
	}
	return out
}

// persist writes candidates at or above threshold: unknown titles become
// new releases, known ones gap-fill. Every matched release counts as an
// update even when only the source URL and last-scraped stamp moved, so a
// repeat scrape of an already-harvested page still reports a delta.
func (s *StaticScraper) persist(ctx context.Context, authorID int64, candidates []release.Candidate, threshold float64) release.PullResult {
	now := s.clock.Now()
	result := release.PullResult{Success: true}

	for _, c := range candidates {
		if c.Confidence < threshold {
			continue
		}
		existing, err := s.releases.FindByAuthorTitleOrSource(ctx, authorID, c.Title, c.SourceURL)
		switch {
		case errors.Is(err, release.ErrReleaseNotFound):
			created, err := s.releases.Create(ctx, release.Release{
				AuthorID:      authorID,
				Title:         c.Title,
				Description:   truncate(c.Description, maxDescriptionLen),
				SourceURL:     c.SourceURL,
				AnnouncedDate: now,
				ExpectedDate:  c.ExpectedDate,
				Status:        release.StatusAnnounced,
				Interested:    true,
				LastScrapedAt: now,
			})
			if err != nil {
				s.logger.Debug("candidate not created", zap.String("title", c.Title), zap.Error(err))
				continue
			}
			result.New = append(result.New, created)
		case err != nil:
			s.logger.Debug("candidate lookup failed", zap.String("title", c.Title), zap.Error(err))
		default:
			updated, err := s.releases.GapFill(ctx, existing.ID, release.GapFillPatch{
				Description:   truncate(c.Description, maxDescriptionLen),
				ExpectedDate:  c.ExpectedDate,
				SourceURL:     c.SourceURL,
				LastScrapedAt: now,
			})
			if err != nil {
				s.logger.Debug("candidate not updated", zap.String("title", c.Title), zap.Error(err))
				continue
			}
			result.Updated = append(result.Updated, updated)
		}
	}
	return result
}

// archive stores the raw page body when a snapshot store is configured.
// Failures are logged, never fatal.
func (s *StaticScraper) archive(ctx context.Context, authorID int64, websiteURL string, body []byte) {
	if s.snapshots == nil {
		return
	}
	path := fmt.Sprintf("%s/%d/%d.html", s.snapshotPrefix, authorID, s.clock.Now().UnixNano())
	if _, err := s.snapshots.PutObject(ctx, path, s.snapshotContentType, body); err != nil {
		s.logger.Warn("page snapshot failed",
			zap.String("url", websiteURL),
			zap.Error(err))
	}
}

func extractTitle(el *goquery.Selection) string {
	for _, selector := range titleSelectors {
		if title := strings.TrimSpace(el.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	text := strings.TrimSpace(el.Text())
	if len(text) > 100 {
		return text[:100] + "..."
	}
	return text
}

func extractDescription(el *goquery.Selection, fullText string) string {
	for _, selector := range descriptionSelectors {
		desc := strings.TrimSpace(el.Find(selector).First().Text())
		if len(desc) > 50 && len(desc) < 1000 {
			return desc
		}
	}
	if len(fullText) > 100 && len(fullText) < 1000 {
		return fullText
	}
	return ""
}

func extractLink(el *goquery.Selection, baseURL string) string {
	href, ok := el.Find("a").First().Attr("href")
	if !ok {
		href, ok = el.Attr("href")
	}
	if !ok || href == "" {
		return baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return baseURL
	}
	return base.ResolveReference(ref).String()
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
