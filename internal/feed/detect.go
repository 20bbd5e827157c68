// Package feed discovers, validates, and extracts releases from RSS/Atom
// feeds.
package feed

import (
	"context"
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/release"
)

// Conventional feed locations probed relative to a site root.
var commonFeedPaths = []string{
	"/rss",
	"/feed",
	"/rss.xml",
	"/feed.xml",
	"/atom.xml",
	"/news/rss",
	"/blog/rss",
	"/blog/feed",
	"/news.xml",
	"/posts/rss",
	"/updates/rss",
}

// Matches <link> elements advertising an RSS/Atom/RDF feed, with the href
// attribute on either side of the type attribute.
var feedLinkPattern = regexp.MustCompile(
	`(?i)<link[^>]*(?:type=["']application/(?:rss\+xml|atom\+xml|rdf\+xml)["'][^>]*href=["']([^"']+)["']|href=["']([^"']+)["'][^>]*type=["']application/(?:rss\+xml|atom\+xml|rdf\+xml)["'])`)

// Detector discovers candidate feed URLs for a seed website.
type Detector struct {
	fetcher release.Fetcher
	logger  *zap.Logger
}

// NewDetector builds a Detector.
func NewDetector(fetcher release.Fetcher, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{fetcher: fetcher, logger: logger}
}

// Detect returns the de-duplicated union of conventional feed paths and
// feed links advertised in the site's root markup. It is best-effort and
// never fails: an unreachable site still yields the conventional paths.
func (d *Detector) Detect(ctx context.Context, siteURL string) []string {
	base, err := url.Parse(siteURL)
	if err != nil || base.Host == "" {
		d.logger.Warn("feed detection given unusable site url", zap.String("url", siteURL))
		return nil
	}

	var feeds []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		feeds = append(feeds, abs)
	}

	for _, path := range commonFeedPaths {
		add(path)
	}

	resp, err := d.fetcher.Fetch(ctx, siteURL)
	if err != nil {
		d.logger.Debug("root page fetch failed during feed detection",
			zap.String("url", siteURL), zap.Error(err))
		return feeds
	}
	if resp.StatusCode != http.StatusOK {
		return feeds
	}

	for _, groups := range feedLinkPattern.FindAllStringSubmatch(string(resp.Body), -1) {
		href := groups[1]
		if href == "" {
			href = groups[2]
		}
		if href != "" {
			add(href)
		}
	}
	return feeds
}
