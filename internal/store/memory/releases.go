// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/booktrail/release-crawler/internal/release"
)

// ReleaseStore is an in-memory release.ReleaseStore.
type ReleaseStore struct {
	mu       sync.RWMutex
	nextID   int64
	releases map[int64]release.Release
}

// NewReleaseStore constructs an empty ReleaseStore.
func NewReleaseStore() *ReleaseStore {
	return &ReleaseStore{
		nextID:   1,
		releases: make(map[int64]release.Release),
	}
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// FindByAuthorAndTitle returns the release keyed by (authorID, title).
func (s *ReleaseStore) FindByAuthorAndTitle(_ context.Context, authorID int64, title string) (release.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := titleKey(title)
	for _, r := range s.releases {
		if r.AuthorID == authorID && titleKey(r.Title) == key {
			return r, nil
		}
	}
	return release.Release{}, release.ErrReleaseNotFound
}

// FindByAuthorTitleOrSource matches on title or source URL.
func (s *ReleaseStore) FindByAuthorTitleOrSource(_ context.Context, authorID int64, title, sourceURL string) (release.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := titleKey(title)
	for _, r := range s.releases {
		if r.AuthorID != authorID {
			continue
		}
		if titleKey(r.Title) == key || (sourceURL != "" && r.SourceURL == sourceURL) {
			return r, nil
		}
	}
	return release.Release{}, release.ErrReleaseNotFound
}

// Create stores a new release, enforcing (authorID, title) uniqueness.
func (s *ReleaseStore) Create(_ context.Context, r release.Release) (release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := titleKey(r.Title)
	for _, existing := range s.releases {
		if existing.AuthorID == r.AuthorID && titleKey(existing.Title) == key {
			return release.Release{}, release.ErrDuplicateTitle
		}
	}
	r.ID = s.nextID
	s.nextID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.releases[r.ID] = r
	return r, nil
}

// GapFill updates only currently-empty fields and always refreshes the
// source URL and last-scraped timestamp.
func (s *ReleaseStore) GapFill(_ context.Context, id int64, patch release.GapFillPatch) (release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.releases[id]
	if !ok {
		return release.Release{}, release.ErrReleaseNotFound
	}
	if r.Description == "" && patch.Description != "" {
		r.Description = patch.Description
	}
	if r.ExpectedDate == nil && patch.ExpectedDate != nil {
		r.ExpectedDate = patch.ExpectedDate
	}
	if patch.SourceURL != "" {
		r.SourceURL = patch.SourceURL
	}
	if !patch.LastScrapedAt.IsZero() {
		r.LastScrapedAt = patch.LastScrapedAt
	}
	s.releases[id] = r
	return r, nil
}

// DeleteWhere removes releases matching all set filter fields and returns
// how many were removed.
func (s *ReleaseStore) DeleteWhere(_ context.Context, f release.ReleaseFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, r := range s.releases {
		if matchesFilter(r, f) {
			delete(s.releases, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored releases.
func (s *ReleaseStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.releases)), nil
}

// CountCreatedSince counts an author's releases created at or after since.
func (s *ReleaseStore) CountCreatedSince(_ context.Context, authorID int64, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.releases {
		if r.AuthorID == authorID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func matchesFilter(r release.Release, f release.ReleaseFilter) bool {
	if f.AnnouncedBefore != nil && !r.AnnouncedDate.Before(*f.AnnouncedBefore) {
		return false
	}
	if f.ExpectedBefore != nil && (r.ExpectedDate == nil || !r.ExpectedDate.Before(*f.ExpectedBefore)) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if r.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PublishedNull && r.PublishedDate != nil {
		return false
	}
	return true
}
