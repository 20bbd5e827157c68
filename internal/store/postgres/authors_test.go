package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/booktrail/release-crawler/internal/release"
)

var authorCols = []string{
	"id", "name", "website_url", "feed_url", "social_urls", "favorited", "last_scraped_at",
}

func TestAuthorStore_Get(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM authors WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(authorCols).AddRow(
			int64(1), "A. Writer", "https://a.example", "https://a.example/feed",
			[]byte(`["https://social.example/a"]`), true, &testNow,
		))

	author, err := NewAuthorStore(mock).Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "A. Writer", author.Name)
	require.Equal(t, []string{"https://social.example/a"}, author.SocialURLs)
	require.True(t, author.Favorited)
	require.Equal(t, testNow, *author.LastScrapedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorStore_GetMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM authors WHERE id").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewAuthorStore(mock).Get(context.Background(), 9)
	require.ErrorIs(t, err, release.ErrAuthorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorStore_ListFavorites(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM authors WHERE favorited").
		WillReturnRows(pgxmock.NewRows(authorCols).
			AddRow(int64(1), "A. Writer", "https://a.example", "", []byte(`[]`), true, nil).
			AddRow(int64(2), "B. Scribe", "", "https://b.example/feed", []byte(`[]`), true, nil))

	favs, err := NewAuthorStore(mock).ListFavorites(context.Background())
	require.NoError(t, err)
	require.Len(t, favs, 2)
	require.Equal(t, "A. Writer", favs[0].Name)
	require.True(t, favs[1].Sources().Feed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorStore_SetLastScraped(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE authors SET last_scraped_at").
		WithArgs(int64(1), testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewAuthorStore(mock).SetLastScraped(context.Background(), 1, testNow))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorStore_SetFeedURLMissingAuthor(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE authors SET feed_url").
		WithArgs(int64(9), "https://x.example/feed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewAuthorStore(mock).SetFeedURL(context.Background(), 9, "https://x.example/feed")
	require.ErrorIs(t, err, release.ErrAuthorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
