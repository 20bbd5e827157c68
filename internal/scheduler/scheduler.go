// Package scheduler drives recurring scrape and cleanup runs off cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/release"
)

const (
	// dailyAuthorLimit caps how many authors one daily run touches.
	dailyAuthorLimit = 20
	// recentReleaseWindow marks authors with fresh releases as priority.
	recentReleaseWindow = 30 * 24 * time.Hour
	// staleAfter is how long an author may go unscraped before the daily
	// run picks them up again.
	staleAfter = 24 * time.Hour

	defaultBatchDelay = 5 * time.Second
)

// AuthorScraper is the orchestrator surface the scheduler drives.
type AuthorScraper interface {
	ScrapeAuthor(ctx context.Context, authorID int64) release.ScrapeOutcome
	ScrapeFavoriteAuthors(ctx context.Context) (release.BatchOutcome, error)
}

// Config controls which recurring runs are armed and how they pace.
// RespectRateLimits is carried and reported through Status; the pacing
// itself lives in the fetcher's per-domain limiter.
type Config struct {
	DailyEnabled         bool  `mapstructure:"daily_enabled" json:"daily_enabled"`
	WeeklyEnabled        bool  `mapstructure:"weekly_enabled" json:"weekly_enabled"`
	ScrapingHours        []int `mapstructure:"scraping_hours" json:"scraping_hours"`
	MaxConcurrentScrapes int   `mapstructure:"max_concurrent_scrapes" json:"max_concurrent_scrapes"`
	RespectRateLimits    bool  `mapstructure:"respect_rate_limits" json:"respect_rate_limits"`
}

// DefaultConfig arms all runs: daily scrapes at 06:00, 14:00 and 22:00 UTC,
// three authors at a time.
func DefaultConfig() Config {
	return Config{
		DailyEnabled:         true,
		WeeklyEnabled:        true,
		ScrapingHours:        []int{6, 14, 22},
		MaxConcurrentScrapes: 3,
		RespectRateLimits:    true,
	}
}

// ConfigPatch is a partial config update; nil fields keep current values.
type ConfigPatch struct {
	DailyEnabled         *bool  `json:"daily_enabled,omitempty"`
	WeeklyEnabled        *bool  `json:"weekly_enabled,omitempty"`
	ScrapingHours        []int  `json:"scraping_hours,omitempty"`
	MaxConcurrentScrapes *int   `json:"max_concurrent_scrapes,omitempty"`
	RespectRateLimits    *bool  `json:"respect_rate_limits,omitempty"`
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running        bool   `json:"running"`
	ScheduledTasks int    `json:"scheduled_tasks"`
	Config         Config `json:"config"`
}

// Scheduler owns the cron entries for daily scrapes, the weekly full
// scrape, and the monthly cleanup.
type Scheduler struct {
	scraper    AuthorScraper
	authors    release.AuthorStore
	releases   release.ReleaseStore
	clock      release.Clock
	logger     *zap.Logger
	batchDelay time.Duration

	mu      sync.Mutex
	cfg     Config
	cron    *cron.Cron
	tasks   int
	running bool
}

// New builds a Scheduler.
func New(
	cfg Config,
	scraper AuthorScraper,
	authors release.AuthorStore,
	releases release.ReleaseStore,
	clock release.Clock,
	logger *zap.Logger,
) *Scheduler {
	if cfg.MaxConcurrentScrapes <= 0 {
		cfg.MaxConcurrentScrapes = DefaultConfig().MaxConcurrentScrapes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scraper:    scraper,
		authors:    authors,
		releases:   releases,
		clock:      clock,
		logger:     logger,
		batchDelay: defaultBatchDelay,
		cfg:        cfg,
	}
}

// Start arms the cron entries. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

// Stop disarms all entries. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Status reports whether the scheduler runs and how many entries it holds.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:        s.running,
		ScheduledTasks: s.tasks,
		Config:         s.cfg,
	}
}

// UpdateConfig applies a patch; a running scheduler restarts with the new
// configuration.
func (s *Scheduler) UpdateConfig(patch ConfigPatch) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.DailyEnabled != nil {
		s.cfg.DailyEnabled = *patch.DailyEnabled
	}
	if patch.WeeklyEnabled != nil {
		s.cfg.WeeklyEnabled = *patch.WeeklyEnabled
	}
	if len(patch.ScrapingHours) > 0 {
		s.cfg.ScrapingHours = patch.ScrapingHours
	}
	if patch.MaxConcurrentScrapes != nil && *patch.MaxConcurrentScrapes > 0 {
		s.cfg.MaxConcurrentScrapes = *patch.MaxConcurrentScrapes
	}
	if patch.RespectRateLimits != nil {
		s.cfg.RespectRateLimits = *patch.RespectRateLimits
	}

	if s.running {
		s.stopLocked()
		s.startLocked()
	}
	return s.cfg
}

// RunManual triggers one run immediately, outside the cron schedule.
func (s *Scheduler) RunManual(ctx context.Context, kind string) error {
	switch kind {
	case "daily":
		s.runDaily(ctx)
	case "weekly":
		s.runWeekly(ctx)
	case "cleanup":
		s.runCleanup(ctx)
	default:
		return fmt.Errorf("unknown run kind %q", kind)
	}
	return nil
}

func (s *Scheduler) startLocked() {
	if s.running {
		s.logger.Info("scheduler already running")
		return
	}

	c := cron.New()
	s.tasks = 0

	if s.cfg.DailyEnabled {
		for _, hour := range s.cfg.ScrapingHours {
			if hour < 0 || hour > 23 {
				s.logger.Warn("skipping invalid scraping hour", zap.Int("hour", hour))
				continue
			}
			spec := fmt.Sprintf("0 %d * * *", hour)
			if _, err := c.AddFunc(spec, func() { s.runDaily(context.Background()) }); err != nil {
				s.logger.Error("daily schedule rejected", zap.String("spec", spec), zap.Error(err))
				continue
			}
			s.tasks++
		}
	}

	if s.cfg.WeeklyEnabled {
		if _, err := c.AddFunc("0 3 * * 0", func() { s.runWeekly(context.Background()) }); err != nil {
			s.logger.Error("weekly schedule rejected", zap.Error(err))
		} else {
			s.tasks++
		}
	}

	if _, err := c.AddFunc("0 2 1 * *", func() { s.runCleanup(context.Background()) }); err != nil {
		s.logger.Error("cleanup schedule rejected", zap.Error(err))
	} else {
		s.tasks++
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("scheduler started", zap.Int("tasks", s.tasks))
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		s.logger.Info("scheduler not running")
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.tasks = 0
	s.running = false
	s.logger.Info("scheduler stopped")
}

// runDaily scrapes the day's author selection in concurrent batches.
func (s *Scheduler) runDaily(ctx context.Context) {
	authors, err := s.selectDailyAuthors(ctx)
	if err != nil {
		s.logger.Error("daily selection failed", zap.Error(err))
		return
	}
	if len(authors) == 0 {
		s.logger.Info("no authors need daily scraping")
		return
	}

	s.mu.Lock()
	batchSize := s.cfg.MaxConcurrentScrapes
	s.mu.Unlock()

	var (
		success int
		created int
		updated int
	)
	for start := 0; start < len(authors); start += batchSize {
		end := start + batchSize
		if end > len(authors) {
			end = len(authors)
		}
		batch := authors[start:end]

		outcomes := make([]release.ScrapeOutcome, len(batch))
		var wg sync.WaitGroup
		for i, author := range batch {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				outcomes[i] = s.scraper.ScrapeAuthor(ctx, id)
			}(i, author.ID)
		}
		wg.Wait()

		for _, out := range outcomes {
			if out.Success {
				success++
				created += out.NewReleases
				updated += out.UpdatedReleases
			}
		}

		if end < len(authors) {
			if err := sleepCtx(ctx, s.batchDelay); err != nil {
				s.logger.Warn("daily run interrupted", zap.Error(err))
				return
			}
		}
	}

	s.logger.Info("daily scrape completed",
		zap.Int("authors", len(authors)),
		zap.Int("successful", success),
		zap.Int("new_releases", created),
		zap.Int("updated_releases", updated))
}

func (s *Scheduler) runWeekly(ctx context.Context) {
	outcome, err := s.scraper.ScrapeFavoriteAuthors(ctx)
	if err != nil {
		s.logger.Error("weekly scrape failed", zap.Error(err))
		return
	}
	s.logger.Info("weekly scrape completed",
		zap.Int("authors", outcome.TotalAuthors),
		zap.Int("successful", outcome.SuccessfulScrapes),
		zap.Int("new_releases", outcome.TotalNewReleases),
		zap.Int("updated_releases", outcome.TotalUpdatedReleases))
}

// runCleanup removes announcements that went stale: announced over a year
// ago and never published, or expected more than six months ago and still
// unpublished.
func (s *Scheduler) runCleanup(ctx context.Context) {
	now := s.clock.Now()

	yearAgo := now.AddDate(-1, 0, 0)
	outdated, err := s.releases.DeleteWhere(ctx, release.ReleaseFilter{
		AnnouncedBefore: &yearAgo,
		Statuses:        []release.Status{release.StatusAnnounced},
		PublishedNull:   true,
	})
	if err != nil {
		s.logger.Error("outdated cleanup failed", zap.Error(err))
		return
	}

	sixMonthsAgo := now.AddDate(0, -6, 0)
	missed, err := s.releases.DeleteWhere(ctx, release.ReleaseFilter{
		ExpectedBefore: &sixMonthsAgo,
		Statuses:       []release.Status{release.StatusAnnounced, release.StatusPreorder},
		PublishedNull:  true,
	})
	if err != nil {
		s.logger.Error("missed cleanup failed", zap.Error(err))
		return
	}

	s.logger.Info("monthly cleanup completed",
		zap.Int64("outdated_removed", outdated),
		zap.Int64("missed_removed", missed))
}

// selectDailyAuthors picks favorites with at least one source that have
// not been scraped in a day, authors with releases created in the last 30
// days first, then least recently scraped, capped at twenty.
func (s *Scheduler) selectDailyAuthors(ctx context.Context) ([]release.AuthorProfile, error) {
	favorites, err := s.authors.ListFavorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	now := s.clock.Now()
	cutoff := now.Add(-staleAfter)
	recentSince := now.Add(-recentReleaseWindow)

	type ranked struct {
		profile release.AuthorProfile
		recent  bool
	}
	var candidates []ranked
	for _, a := range favorites {
		if !a.Sources().Any() {
			continue
		}
		if a.LastScrapedAt != nil && a.LastScrapedAt.After(cutoff) {
			continue
		}
		n, err := s.releases.CountCreatedSince(ctx, a.ID, recentSince)
		if err != nil {
			s.logger.Warn("recent release count failed",
				zap.Int64("author_id", a.ID),
				zap.Error(err))
		}
		candidates = append(candidates, ranked{profile: a, recent: n > 0})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].recent != candidates[j].recent {
			return candidates[i].recent
		}
		return lastScraped(candidates[i].profile).Before(lastScraped(candidates[j].profile))
	})

	if len(candidates) > dailyAuthorLimit {
		candidates = candidates[:dailyAuthorLimit]
	}
	out := make([]release.AuthorProfile, len(candidates))
	for i, c := range candidates {
		out[i] = c.profile
	}
	return out, nil
}

func lastScraped(p release.AuthorProfile) time.Time {
	if p.LastScrapedAt == nil {
		return time.Time{}
	}
	return *p.LastScrapedAt
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
