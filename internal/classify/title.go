package classify

import (
	"regexp"
	"strings"
)

var (
	titlePrefixPattern = regexp.MustCompile(`(?i)^(new book:?|book announcement:?|announcement:?|release:?|coming soon:?|pre-?order:?)\s*`)
	availableNowSuffix = regexp.MustCompile(`(?i)\s*-\s*available\s+now$`)
	comingSoonSuffix   = regexp.MustCompile(`(?i)\s*-\s*coming\s+soon$`)
	pipeSuffixPattern  = regexp.MustCompile(`\s*\|\s*.*$`)
)

// CleanTitle derives a book title from an announcement headline: boilerplate
// prefixes and trailing availability suffixes are stripped, anything after a
// pipe is dropped, and symmetric wrapping quotes are removed.
func CleanTitle(raw string) string {
	title := titlePrefixPattern.ReplaceAllString(raw, "")
	title = availableNowSuffix.ReplaceAllString(title, "")
	title = comingSoonSuffix.ReplaceAllString(title, "")
	title = pipeSuffixPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)

	if len(title) >= 2 {
		if (strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`)) ||
			(strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'")) {
			title = title[1 : len(title)-1]
		}
	}
	return title
}

// TitleFromText pulls a plausible title out of free-form text: the first
// non-empty line, cut back to its first sentence when it runs long.
func TitleFromText(text string) string {
	first := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			first = line
			break
		}
	}
	if first == "" {
		if len(text) > 100 {
			return strings.TrimSpace(text[:100])
		}
		return strings.TrimSpace(text)
	}
	if len(first) > 100 {
		sentences := strings.FieldsFunc(first, func(r rune) bool {
			return r == '.' || r == '!' || r == '?'
		})
		if len(sentences) > 1 {
			return strings.TrimSpace(sentences[0]) + "..."
		}
		return strings.TrimSpace(first[:100]) + "..."
	}
	return first
}

// NormalizeTitle is the deduplication key for candidate titles.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
