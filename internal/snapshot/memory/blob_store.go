// Package memory keeps page snapshots in process memory for development
// runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Object is one stored snapshot.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore is an in-memory snapshot store.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New returns an empty BlobStore.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores data under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return "mem://" + path, nil
}

// Get returns the stored object and whether it exists.
func (s *BlobStore) Get(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Len reports how many snapshots are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
