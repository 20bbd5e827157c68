package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Bare date expressions scanned by the scrapers. Numeric forms resolve
// month-first (US ordering) via dateparse; this mirrors the upstream data,
// not a verified requirement.
var bareDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`),
	regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
	regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})\b`),
}

// Phrase-anchored expected-date expressions from announcement copy.
var expectedDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:coming|available|released?|published?)\s+(?:on\s+)?([A-Za-z]+\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`(?i)(?:coming|available|released?|published?)\s+(?:on\s+)?(\d{1,2}/\d{1,2}/\d{4})`),
	regexp.MustCompile(`(?i)(?:coming|available|released?|published?)\s+(?:on\s+)?(\d{4}-\d{2}-\d{2})`),
	regexp.MustCompile(`(?i)release\s+date:?\s*([A-Za-z]+\s+\d{1,2},?\s+\d{4})`),
	regexp.MustCompile(`(?i)([A-Za-z]+\s+\d{4})\s+release`),
}

// dateFloor guards against parsing stray numbers as ancient dates.
var dateFloor = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// ExtractDate finds the first parseable bare date expression in text.
// It is not restricted to future dates; announcement copy often names the
// date a book already shipped.
func ExtractDate(text string) *time.Time {
	for _, pattern := range bareDatePatterns {
		match := pattern.FindString(text)
		if match == "" {
			continue
		}
		if t, ok := parseDate(match); ok && t.After(dateFloor) {
			return &t
		}
	}
	return nil
}

// ExtractExpectedDate finds a phrase-anchored release date in title+body
// and keeps it only when strictly in the future relative to now.
func ExtractExpectedDate(title, body string, now time.Time) *time.Time {
	combined := title + " " + body
	for _, pattern := range expectedDatePatterns {
		groups := pattern.FindStringSubmatch(combined)
		if groups == nil {
			continue
		}
		if t, ok := parseDate(groups[1]); ok && t.After(now) {
			return &t
		}
	}
	return nil
}

var fallbackLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"January 2006",
	"1/2/2006",
	"2006-01-02",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := dateparse.ParseAny(raw); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
