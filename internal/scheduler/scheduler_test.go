package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/booktrail/release-crawler/internal/release"
	"github.com/booktrail/release-crawler/internal/store/memory"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeScraper struct {
	mu        sync.Mutex
	scraped   []int64
	batchRuns int
}

func (f *fakeScraper) ScrapeAuthor(_ context.Context, authorID int64) release.ScrapeOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scraped = append(f.scraped, authorID)
	return release.ScrapeOutcome{AuthorID: authorID, Success: true, Kind: release.OutcomeOK, NewReleases: 1}
}

func (f *fakeScraper) ScrapeFavoriteAuthors(context.Context) (release.BatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchRuns++
	return release.BatchOutcome{TotalAuthors: 2, SuccessfulScrapes: 2}, nil
}

func (f *fakeScraper) scrapedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.scraped...)
}

func newScheduler(cfg Config, scraper AuthorScraper, authors *memory.AuthorStore, releases *memory.ReleaseStore) *Scheduler {
	s := New(cfg, scraper, authors, releases, fixedClock{now: testNow}, zap.NewNop())
	s.batchDelay = 0
	return s
}

func TestStartStopAndStatus(t *testing.T) {
	t.Parallel()

	s := newScheduler(DefaultConfig(), &fakeScraper{}, memory.NewAuthorStore(), memory.NewReleaseStore())

	require.False(t, s.Status().Running)

	s.Start()
	status := s.Status()
	require.True(t, status.Running)
	// Three daily hours, one weekly, one cleanup.
	require.Equal(t, 5, status.ScheduledTasks)

	// A second start changes nothing.
	s.Start()
	require.Equal(t, 5, s.Status().ScheduledTasks)

	s.Stop()
	require.False(t, s.Status().Running)
	require.Zero(t, s.Status().ScheduledTasks)
	s.Stop()
}

func TestUpdateConfigRestartsRunningScheduler(t *testing.T) {
	t.Parallel()

	s := newScheduler(DefaultConfig(), &fakeScraper{}, memory.NewAuthorStore(), memory.NewReleaseStore())
	s.Start()
	defer s.Stop()

	require.True(t, s.Status().Config.RespectRateLimits)

	off := false
	cfg := s.UpdateConfig(ConfigPatch{
		DailyEnabled:      &off,
		ScrapingHours:     []int{4},
		RespectRateLimits: &off,
	})
	require.False(t, cfg.DailyEnabled)
	require.False(t, cfg.RespectRateLimits)

	// Daily entries are gone; weekly and cleanup remain.
	status := s.Status()
	require.True(t, status.Running)
	require.Equal(t, 2, status.ScheduledTasks)
}

func TestRunManualDaily_SelectsAndScrapes(t *testing.T) {
	t.Parallel()

	authors := memory.NewAuthorStore()
	releases := memory.NewReleaseStore()
	scraper := &fakeScraper{}

	dayOld := testNow.Add(-36 * time.Hour)
	weekOld := testNow.Add(-7 * 24 * time.Hour)
	fresh := testNow.Add(-2 * time.Hour)

	// Scraped yesterday, has a release created in the last 30 days:
	// highest priority.
	authors.Put(release.AuthorProfile{ID: 1, Name: "Prolific", Favorited: true, WebsiteURL: "https://p.example", LastScrapedAt: &dayOld})
	_, err := releases.Create(context.Background(), release.Release{
		AuthorID: 1, Title: "Shadows Rising", Status: release.StatusAnnounced,
		CreatedAt: testNow.Add(-5 * 24 * time.Hour),
	})
	require.NoError(t, err)

	// Never scraped, no recent releases: second.
	authors.Put(release.AuthorProfile{ID: 2, Name: "Unscraped", Favorited: true, FeedURL: "https://u.example/feed"})
	// Scraped a week ago, no recent releases: third.
	authors.Put(release.AuthorProfile{ID: 3, Name: "Stale", Favorited: true, WebsiteURL: "https://s.example", LastScrapedAt: &weekOld})
	// Scraped two hours ago: excluded.
	authors.Put(release.AuthorProfile{ID: 4, Name: "Fresh", Favorited: true, WebsiteURL: "https://f.example", LastScrapedAt: &fresh})
	// No sources: excluded.
	authors.Put(release.AuthorProfile{ID: 5, Name: "Sourceless", Favorited: true})
	// Not favorited: excluded.
	authors.Put(release.AuthorProfile{ID: 6, Name: "Stranger", WebsiteURL: "https://x.example"})

	s := newScheduler(DefaultConfig(), scraper, authors, releases)
	require.NoError(t, s.RunManual(context.Background(), "daily"))

	scraped := scraper.scrapedIDs()
	require.Len(t, scraped, 3)
	require.ElementsMatch(t, []int64{1, 2, 3}, scraped)
}

func TestSelectDailyAuthors_Prioritization(t *testing.T) {
	t.Parallel()

	authors := memory.NewAuthorStore()
	releases := memory.NewReleaseStore()

	dayOld := testNow.Add(-25 * time.Hour)
	weekOld := testNow.Add(-7 * 24 * time.Hour)

	authors.Put(release.AuthorProfile{ID: 1, Name: "Old Quiet", Favorited: true, WebsiteURL: "https://a.example", LastScrapedAt: &weekOld})
	authors.Put(release.AuthorProfile{ID: 2, Name: "Recent Release", Favorited: true, WebsiteURL: "https://b.example", LastScrapedAt: &dayOld})
	_, err := releases.Create(context.Background(), release.Release{
		AuthorID: 2, Title: "Iron Harvest", Status: release.StatusAnnounced,
		CreatedAt: testNow.Add(-3 * 24 * time.Hour),
	})
	require.NoError(t, err)

	s := newScheduler(DefaultConfig(), &fakeScraper{}, authors, releases)
	selected, err := s.selectDailyAuthors(context.Background())
	require.NoError(t, err)

	// The author with a release in the last 30 days goes first even
	// though the other was scraped longer ago.
	require.Len(t, selected, 2)
	require.EqualValues(t, 2, selected[0].ID)
	require.EqualValues(t, 1, selected[1].ID)
}

func TestSelectDailyAuthors_CapsAtTwenty(t *testing.T) {
	t.Parallel()

	authors := memory.NewAuthorStore()
	for i := int64(1); i <= 30; i++ {
		authors.Put(release.AuthorProfile{ID: i, Name: "Author", Favorited: true, WebsiteURL: "https://a.example"})
	}

	s := newScheduler(DefaultConfig(), &fakeScraper{}, authors, memory.NewReleaseStore())
	selected, err := s.selectDailyAuthors(context.Background())
	require.NoError(t, err)
	require.Len(t, selected, dailyAuthorLimit)
}

func TestRunManualWeekly(t *testing.T) {
	t.Parallel()

	scraper := &fakeScraper{}
	s := newScheduler(DefaultConfig(), scraper, memory.NewAuthorStore(), memory.NewReleaseStore())

	require.NoError(t, s.RunManual(context.Background(), "weekly"))
	require.Equal(t, 1, scraper.batchRuns)
}

func TestRunManualCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	releases := memory.NewReleaseStore()

	// Announced 400 days ago, never published: removed.
	_, err := releases.Create(ctx, release.Release{
		AuthorID: 1, Title: "Stale Announcement",
		AnnouncedDate: testNow.AddDate(0, 0, -400), Status: release.StatusAnnounced,
	})
	require.NoError(t, err)

	// Expected seven months ago, still preorder: removed.
	expected := testNow.AddDate(0, -7, 0)
	_, err = releases.Create(ctx, release.Release{
		AuthorID: 1, Title: "Missed Preorder",
		AnnouncedDate: testNow.AddDate(0, -8, 0), ExpectedDate: &expected,
		Status: release.StatusPreorder,
	})
	require.NoError(t, err)

	// Published: kept regardless of age.
	published := testNow.AddDate(0, -2, 0)
	_, err = releases.Create(ctx, release.Release{
		AuthorID: 1, Title: "Actually Shipped",
		AnnouncedDate: testNow.AddDate(0, 0, -400), Status: release.StatusPublished,
		PublishedDate: &published,
	})
	require.NoError(t, err)

	// Recent announcement: kept.
	_, err = releases.Create(ctx, release.Release{
		AuthorID: 1, Title: "Fresh",
		AnnouncedDate: testNow.AddDate(0, -1, 0), Status: release.StatusAnnounced,
	})
	require.NoError(t, err)

	s := newScheduler(DefaultConfig(), &fakeScraper{}, memory.NewAuthorStore(), releases)
	require.NoError(t, s.RunManual(ctx, "cleanup"))

	n, err := releases.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = releases.FindByAuthorAndTitle(ctx, 1, "Actually Shipped")
	require.NoError(t, err)
	_, err = releases.FindByAuthorAndTitle(ctx, 1, "Fresh")
	require.NoError(t, err)
}

func TestRunManualRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	s := newScheduler(DefaultConfig(), &fakeScraper{}, memory.NewAuthorStore(), memory.NewReleaseStore())
	require.Error(t, s.RunManual(context.Background(), "hourly"))
}
