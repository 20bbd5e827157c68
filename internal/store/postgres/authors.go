package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/booktrail/release-crawler/internal/release"
)

const authorColumns = `id, name, website_url, feed_url, social_urls,
	favorited, last_scraped_at`

// AuthorStore reads and updates author scraping configuration in the
// authors table. Social URLs live in a JSONB column.
type AuthorStore struct {
	pool Pool
}

// NewAuthorStore builds an AuthorStore on an existing pool.
func NewAuthorStore(pool Pool) *AuthorStore {
	return &AuthorStore{pool: pool}
}

// Get returns the profile or ErrAuthorNotFound.
func (s *AuthorStore) Get(ctx context.Context, id int64) (release.AuthorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM authors WHERE id = $1`, authorColumns)
	return scanAuthor(s.pool.QueryRow(ctx, query, id))
}

// ListFavorites returns favorited profiles ordered by ID.
func (s *AuthorStore) ListFavorites(ctx context.Context) ([]release.AuthorProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM authors WHERE favorited ORDER BY id`, authorColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []release.AuthorProfile
	for rows.Next() {
		p, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return out, nil
}

// SetLastScraped stamps the profile's last-scraped timestamp.
func (s *AuthorStore) SetLastScraped(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE authors SET last_scraped_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("stamp author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return release.ErrAuthorNotFound
	}
	return nil
}

// SetFeedURL configures the profile's feed URL.
func (s *AuthorStore) SetFeedURL(ctx context.Context, id int64, feedURL string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE authors SET feed_url = $2 WHERE id = $1`, id, feedURL)
	if err != nil {
		return fmt.Errorf("set feed url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return release.ErrAuthorNotFound
	}
	return nil
}

func scanAuthor(row pgx.Row) (release.AuthorProfile, error) {
	var (
		p          release.AuthorProfile
		socialJSON []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.WebsiteURL,
		&p.FeedURL,
		&socialJSON,
		&p.Favorited,
		&p.LastScrapedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return release.AuthorProfile{}, release.ErrAuthorNotFound
	}
	if err != nil {
		return release.AuthorProfile{}, fmt.Errorf("scan author: %w", err)
	}
	if len(socialJSON) > 0 {
		if err := json.Unmarshal(socialJSON, &p.SocialURLs); err != nil {
			return release.AuthorProfile{}, fmt.Errorf("decode social urls: %w", err)
		}
	}
	return p, nil
}
