package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/booktrail/release-crawler/internal/release"
)

// AuthorStore is an in-memory release.AuthorStore.
type AuthorStore struct {
	mu      sync.RWMutex
	authors map[int64]release.AuthorProfile
}

// NewAuthorStore constructs an empty AuthorStore.
func NewAuthorStore() *AuthorStore {
	return &AuthorStore{authors: make(map[int64]release.AuthorProfile)}
}

// Put inserts or replaces a profile (seeding helper for dev/tests).
func (s *AuthorStore) Put(profile release.AuthorProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[profile.ID] = profile
}

// Get returns the profile or ErrAuthorNotFound.
func (s *AuthorStore) Get(_ context.Context, id int64) (release.AuthorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.authors[id]
	if !ok {
		return release.AuthorProfile{}, release.ErrAuthorNotFound
	}
	return p, nil
}

// ListFavorites returns favorited profiles ordered by ID.
func (s *AuthorStore) ListFavorites(_ context.Context) ([]release.AuthorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []release.AuthorProfile
	for _, p := range s.authors {
		if p.Favorited {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetLastScraped stamps the profile's last-scraped timestamp.
func (s *AuthorStore) SetLastScraped(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.authors[id]
	if !ok {
		return release.ErrAuthorNotFound
	}
	p.LastScrapedAt = &at
	s.authors[id] = p
	return nil
}

// SetFeedURL configures the profile's feed URL.
func (s *AuthorStore) SetFeedURL(_ context.Context, id int64, feedURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.authors[id]
	if !ok {
		return release.ErrAuthorNotFound
	}
	p.FeedURL = feedURL
	s.authors[id] = p
	return nil
}
