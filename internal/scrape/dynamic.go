package scrape

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/classify"
	"github.com/booktrail/release-crawler/internal/release"
)

const maxMarkerCandidates = 5

// DynamicScraper renders script-heavy pages in a headless browser and runs
// the static extraction pipeline over the settled DOM. When that yields
// nothing it falls back to elements carrying explicit release markers.
type DynamicScraper struct {
	renderer   release.Renderer
	static     *StaticScraper
	releases   release.ReleaseStore
	classifier *classify.Classifier
	clock      release.Clock
	logger     *zap.Logger
}

// NewDynamicScraper builds a DynamicScraper.
func NewDynamicScraper(
	renderer release.Renderer,
	static *StaticScraper,
	releases release.ReleaseStore,
	classifier *classify.Classifier,
	clock release.Clock,
	logger *zap.Logger,
) *DynamicScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamicScraper{
		renderer:   renderer,
		static:     static,
		releases:   releases,
		classifier: classifier,
		clock:      clock,
		logger:     logger,
	}
}

// ScrapePage renders the page and persists what it finds. The rendered DOM
// goes through the regular static pipeline first; marker nodes are only
// consulted when that pass changed nothing, and they can only create new
// releases, never update existing ones.
func (d *DynamicScraper) ScrapePage(ctx context.Context, authorID int64, websiteURL string) release.PullResult {
	page, err := d.renderer.Render(ctx, websiteURL)
	if err != nil {
		return release.PullResult{Success: false, Error: err.Error()}
	}

	cfg := d.classifier.Config()
	candidates := d.static.ExtractCandidates([]byte(page.HTML), websiteURL)
	result := d.static.persist(ctx, authorID, candidates, cfg.StaticThreshold)
	if result.Delta() {
		return result
	}

	return d.processMarkers(ctx, authorID, websiteURL, page.Markers)
}

func (d *DynamicScraper) processMarkers(ctx context.Context, authorID int64, websiteURL string, markers []release.MarkerNode) release.PullResult {
	cfg := d.classifier.Config()
	now := d.clock.Now()
	result := release.PullResult{Success: true}

	candidates := d.markerCandidates(websiteURL, markers)
	for _, c := range candidates {
		if c.Confidence < cfg.DynamicThreshold {
			continue
		}
		_, err := d.releases.FindByAuthorAndTitle(ctx, authorID, c.Title)
		if err == nil {
			continue
		}
		if !errors.Is(err, release.ErrReleaseNotFound) {
			d.logger.Debug("marker lookup failed", zap.String("title", c.Title), zap.Error(err))
			continue
		}
		created, err := d.releases.Create(ctx, release.Release{
			AuthorID:      authorID,
			Title:         c.Title,
			Description:   c.Description,
			SourceURL:     c.SourceURL,
			AnnouncedDate: now,
			ExpectedDate:  c.ExpectedDate,
			Status:        release.StatusAnnounced,
			Interested:    true,
			LastScrapedAt: now,
		})
		if err != nil {
			d.logger.Debug("marker candidate not created", zap.String("title", c.Title), zap.Error(err))
			continue
		}
		result.New = append(result.New, created)
	}
	return result
}

// markerCandidates scores marker node text, deduplicates by title, and
// keeps the best five.
func (d *DynamicScraper) markerCandidates(websiteURL string, markers []release.MarkerNode) []release.Candidate {
	minConfidence := d.classifier.Config().CandidateThreshold
	var out []release.Candidate
	seen := make(map[string]struct{})

	for _, m := range markers {
		if m.Text == "" {
			continue
		}
		score := d.classifier.Classify("", m.Text)
		if score.Confidence < minConfidence {
			continue
		}
		title := classify.CleanTitle(classify.TitleFromText(m.Text))
		if title == "" {
			continue
		}
		key := classify.NormalizeTitle(title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, release.Candidate{
			Title:        title,
			Description:  truncate(m.Text, maxDescriptionLen),
			SourceURL:    websiteURL,
			ExpectedDate: classify.ExtractDate(m.Text),
			Confidence:   score.Confidence,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxMarkerCandidates {
		out = out[:maxMarkerCandidates]
	}
	return out
}
