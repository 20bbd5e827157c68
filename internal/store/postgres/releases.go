package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/booktrail/release-crawler/internal/release"
)

const releaseColumns = `id, author_id, title, description, source_url,
	announced_date, expected_date, published_date, status, interested,
	notified, notified_at, last_scraped_at, created_at`

// ReleaseStore persists releases in the author_releases table. Title
// uniqueness per author is enforced by a unique index on
// (author_id, lower(title)).
type ReleaseStore struct {
	pool Pool
}

// NewReleaseStore builds a ReleaseStore on an existing pool.
func NewReleaseStore(pool Pool) *ReleaseStore {
	return &ReleaseStore{pool: pool}
}

// Close releases the underlying pool.
func (s *ReleaseStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindByAuthorAndTitle returns the release keyed by (authorID, title).
func (s *ReleaseStore) FindByAuthorAndTitle(ctx context.Context, authorID int64, title string) (release.Release, error) {
	query := fmt.Sprintf(`SELECT %s FROM author_releases
	WHERE author_id = $1 AND lower(btrim(title)) = lower(btrim($2))`, releaseColumns)
	return s.scanOne(s.pool.QueryRow(ctx, query, authorID, title))
}

// FindByAuthorTitleOrSource matches on title or, when non-empty, source URL.
func (s *ReleaseStore) FindByAuthorTitleOrSource(ctx context.Context, authorID int64, title, sourceURL string) (release.Release, error) {
	query := fmt.Sprintf(`SELECT %s FROM author_releases
	WHERE author_id = $1
	  AND (lower(btrim(title)) = lower(btrim($2)) OR ($3 <> '' AND source_url = $3))
	LIMIT 1`, releaseColumns)
	return s.scanOne(s.pool.QueryRow(ctx, query, authorID, title, sourceURL))
}

// Create inserts a release. A second title for the same author returns
// ErrDuplicateTitle.
func (s *ReleaseStore) Create(ctx context.Context, r release.Release) (release.Release, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO author_releases
	(author_id, title, description, source_url, announced_date,
	 expected_date, published_date, status, interested, notified,
	 last_scraped_at, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		r.AuthorID,
		r.Title,
		r.Description,
		r.SourceURL,
		r.AnnouncedDate,
		r.ExpectedDate,
		r.PublishedDate,
		r.Status,
		r.Interested,
		r.Notified,
		r.LastScrapedAt,
		r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return release.Release{}, release.ErrDuplicateTitle
		}
		return release.Release{}, fmt.Errorf("insert release: %w", err)
	}
	return r, nil
}

// GapFill updates only currently-empty description and expected date, and
// always refreshes the source URL and last-scraped stamp.
func (s *ReleaseStore) GapFill(ctx context.Context, id int64, patch release.GapFillPatch) (release.Release, error) {
	var lastScraped *time.Time
	if !patch.LastScrapedAt.IsZero() {
		lastScraped = &patch.LastScrapedAt
	}
	query := fmt.Sprintf(`UPDATE author_releases SET
	description = CASE WHEN description = '' AND $2 <> '' THEN $2 ELSE description END,
	expected_date = COALESCE(expected_date, $3),
	source_url = CASE WHEN $4 <> '' THEN $4 ELSE source_url END,
	last_scraped_at = COALESCE($5, last_scraped_at)
	WHERE id = $1
	RETURNING %s`, releaseColumns)
	return s.scanOne(s.pool.QueryRow(ctx, query,
		id,
		patch.Description,
		patch.ExpectedDate,
		patch.SourceURL,
		lastScraped,
	))
}

// DeleteWhere removes releases matching all set filter fields and reports
// how many went away.
func (s *ReleaseStore) DeleteWhere(ctx context.Context, f release.ReleaseFilter) (int64, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.AnnouncedBefore != nil {
		clauses = append(clauses, "announced_date < "+arg(*f.AnnouncedBefore))
	}
	if f.ExpectedBefore != nil {
		clauses = append(clauses, "expected_date < "+arg(*f.ExpectedBefore))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		clauses = append(clauses, "status = ANY("+arg(statuses)+")")
	}
	if f.PublishedNull {
		clauses = append(clauses, "published_date IS NULL")
	}
	if len(clauses) == 0 {
		return 0, fmt.Errorf("refusing unfiltered delete")
	}

	query := "DELETE FROM author_releases WHERE " + strings.Join(clauses, " AND ")
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete releases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored releases.
func (s *ReleaseStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM author_releases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count releases: %w", err)
	}
	return n, nil
}

// CountCreatedSince counts an author's releases created at or after since.
func (s *ReleaseStore) CountCreatedSince(ctx context.Context, authorID int64, since time.Time) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM author_releases WHERE author_id = $1 AND created_at >= $2`
	if err := s.pool.QueryRow(ctx, query, authorID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent releases: %w", err)
	}
	return n, nil
}

func (s *ReleaseStore) scanOne(row pgx.Row) (release.Release, error) {
	var r release.Release
	err := row.Scan(
		&r.ID,
		&r.AuthorID,
		&r.Title,
		&r.Description,
		&r.SourceURL,
		&r.AnnouncedDate,
		&r.ExpectedDate,
		&r.PublishedDate,
		&r.Status,
		&r.Interested,
		&r.Notified,
		&r.NotifiedAt,
		&r.LastScrapedAt,
		&r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return release.Release{}, release.ErrReleaseNotFound
	}
	if err != nil {
		return release.Release{}, fmt.Errorf("scan release: %w", err)
	}
	return r, nil
}
