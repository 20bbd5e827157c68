package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/booktrail/release-crawler/internal/release"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func releaseRows(r release.Release) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "author_id", "title", "description", "source_url",
		"announced_date", "expected_date", "published_date", "status",
		"interested", "notified", "notified_at", "last_scraped_at", "created_at",
	}).AddRow(
		r.ID, r.AuthorID, r.Title, r.Description, r.SourceURL,
		r.AnnouncedDate, r.ExpectedDate, r.PublishedDate, r.Status,
		r.Interested, r.Notified, r.NotifiedAt, r.LastScrapedAt, r.CreatedAt,
	)
}

func TestReleaseStore_Create(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewReleaseStore(mock)
	r := release.Release{
		AuthorID:      1,
		Title:         "Shadows Rising",
		Description:   "a new novel",
		SourceURL:     "https://a.example/shadows",
		AnnouncedDate: testNow,
		Status:        release.StatusAnnounced,
		Interested:    true,
		LastScrapedAt: testNow,
		CreatedAt:     testNow,
	}

	mock.ExpectQuery("INSERT INTO author_releases").
		WithArgs(
			r.AuthorID, r.Title, r.Description, r.SourceURL, r.AnnouncedDate,
			r.ExpectedDate, r.PublishedDate, r.Status, r.Interested,
			r.Notified, r.LastScrapedAt, r.CreatedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	created, err := store.Create(context.Background(), r)
	require.NoError(t, err)
	require.EqualValues(t, 7, created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_CreateDuplicateTitle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO author_releases").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err = NewReleaseStore(mock).Create(context.Background(), release.Release{
		AuthorID: 1, Title: "Shadows Rising", CreatedAt: testNow,
	})
	require.ErrorIs(t, err, release.ErrDuplicateTitle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_FindByAuthorAndTitle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := release.Release{
		ID: 7, AuthorID: 1, Title: "Shadows Rising",
		AnnouncedDate: testNow, Status: release.StatusAnnounced,
		Interested: true, LastScrapedAt: testNow, CreatedAt: testNow,
	}
	mock.ExpectQuery("SELECT (.+) FROM author_releases").
		WithArgs(int64(1), "Shadows Rising").
		WillReturnRows(releaseRows(want))

	got, err := NewReleaseStore(mock).FindByAuthorAndTitle(context.Background(), 1, "Shadows Rising")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_FindMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM author_releases").
		WithArgs(int64(1), "Nope").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewReleaseStore(mock).FindByAuthorAndTitle(context.Background(), 1, "Nope")
	require.ErrorIs(t, err, release.ErrReleaseNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_GapFill(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expected := time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC)
	want := release.Release{
		ID: 7, AuthorID: 1, Title: "Iron Harvest",
		Description: "filled", SourceURL: "https://a.example/iron",
		AnnouncedDate: testNow, ExpectedDate: &expected,
		Status: release.StatusAnnounced, LastScrapedAt: testNow, CreatedAt: testNow,
	}
	mock.ExpectQuery("UPDATE author_releases SET").
		WithArgs(int64(7), "filled", &expected, "https://a.example/iron", &testNow).
		WillReturnRows(releaseRows(want))

	got, err := NewReleaseStore(mock).GapFill(context.Background(), 7, release.GapFillPatch{
		Description:   "filled",
		ExpectedDate:  &expected,
		SourceURL:     "https://a.example/iron",
		LastScrapedAt: testNow,
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_DeleteWhereBuildsFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	yearAgo := testNow.AddDate(-1, 0, 0)
	mock.ExpectExec("DELETE FROM author_releases WHERE announced_date").
		WithArgs(yearAgo, []string{"announced"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := NewReleaseStore(mock).DeleteWhere(context.Background(), release.ReleaseFilter{
		AnnouncedBefore: &yearAgo,
		Statuses:        []release.Status{release.StatusAnnounced},
		PublishedNull:   true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_DeleteWhereRefusesEmptyFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewReleaseStore(mock).DeleteWhere(context.Background(), release.ReleaseFilter{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStore_CountCreatedSince(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := testNow.AddDate(0, -1, 0)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(1), since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := NewReleaseStore(mock).CountCreatedSince(context.Background(), 1, since)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
