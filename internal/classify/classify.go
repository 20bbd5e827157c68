// Package classify scores arbitrary text for book-release likelihood.
//
// The scoring is a keyword heuristic, not a model: weights and thresholds
// are empirical values carried as configuration so deployments can tune
// them without a rebuild.
package classify

import (
	"regexp"
	"strings"
)

// Config holds the scoring weights and gating thresholds.
type Config struct {
	HighSignalWeight   float64 `mapstructure:"high_signal_weight"`
	MediumSignalWeight float64 `mapstructure:"medium_signal_weight"`
	MultiTermBonus     float64 `mapstructure:"multi_term_bonus"`
	DatePatternBonus   float64 `mapstructure:"date_pattern_bonus"`
	ParsedDateBonus    float64 `mapstructure:"parsed_date_bonus"`
	ShortTextPenalty   float64 `mapstructure:"short_text_penalty"`
	LongTextPenalty    float64 `mapstructure:"long_text_penalty"`
	MinTextLength      int     `mapstructure:"min_text_length"`
	MaxTextLength      int     `mapstructure:"max_text_length"`

	// Gating thresholds per call site.
	FeedThreshold      float64 `mapstructure:"feed_threshold"`
	CandidateThreshold float64 `mapstructure:"candidate_threshold"`
	StaticThreshold    float64 `mapstructure:"static_threshold"`
	DynamicThreshold   float64 `mapstructure:"dynamic_threshold"`
}

// DefaultConfig returns the empirical weights the heuristic shipped with.
func DefaultConfig() Config {
	return Config{
		HighSignalWeight:   0.3,
		MediumSignalWeight: 0.1,
		MultiTermBonus:     0.2,
		DatePatternBonus:   0.1,
		ParsedDateBonus:    0.2,
		ShortTextPenalty:   0.2,
		LongTextPenalty:    0.1,
		MinTextLength:      50,
		MaxTextLength:      2000,
		FeedThreshold:      0.4,
		CandidateThreshold: 0.3,
		StaticThreshold:    0.5,
		DynamicThreshold:   0.6,
	}
}

// Score is the classifier verdict for one text.
type Score struct {
	BookLike   bool    `json:"book_like"`
	Confidence float64 `json:"confidence"`
}

// Classifier scores text against the configured keyword heuristic.
type Classifier struct {
	cfg Config
}

// New builds a Classifier. Zero-valued configs fall back to the defaults.
func New(cfg Config) *Classifier {
	if cfg.HighSignalWeight == 0 && cfg.MediumSignalWeight == 0 {
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg}
}

// Config returns the active configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

var highSignalPhrases = []string{
	"new book", "upcoming book", "book release", "book announcement",
	"pre-order", "preorder", "coming soon", "available now",
	"just published", "release date", "audiobook", "new novel",
	"sequel", "new series", "book cover reveal",
}

var mediumSignalWords = []string{
	"book", "novel", "story", "chapter", "writing", "author",
	"publisher", "isbn", "kindle", "hardcover", "paperback",
}

var bookTermPattern = regexp.MustCompile(`\b(book|novel|story|audiobook|kindle|hardcover|paperback)\b`)

var datePresencePattern = regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december|\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})\b`)

// Classify scores title+body. Each high-signal phrase counts once no
// matter how often it occurs; the date bonus depends on whether a date is
// merely present or actually parseable.
func (c *Classifier) Classify(title, body string) Score {
	combined := strings.ToLower(title + " " + body)
	confidence := 0.0

	for _, phrase := range highSignalPhrases {
		if strings.Contains(combined, phrase) {
			confidence += c.cfg.HighSignalWeight
		}
	}
	for _, word := range mediumSignalWords {
		if strings.Contains(combined, word) {
			confidence += c.cfg.MediumSignalWeight
		}
	}

	if distinctBookTerms(combined) > 2 {
		confidence += c.cfg.MultiTermBonus
	}

	if ExtractDate(combined) != nil {
		confidence += c.cfg.ParsedDateBonus
	} else if datePresencePattern.MatchString(combined) {
		confidence += c.cfg.DatePatternBonus
	}

	textLen := len(strings.TrimSpace(title + " " + body))
	if textLen < c.cfg.MinTextLength {
		confidence -= c.cfg.ShortTextPenalty
	}
	if textLen > c.cfg.MaxTextLength {
		confidence -= c.cfg.LongTextPenalty
	}

	confidence = clamp(confidence)
	return Score{
		BookLike:   confidence >= c.cfg.FeedThreshold,
		Confidence: confidence,
	}
}

func distinctBookTerms(text string) int {
	matches := bookTermPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m] = struct{}{}
	}
	return len(seen)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
