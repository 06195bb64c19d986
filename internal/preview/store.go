// Package preview serves captured images under short-lived local URLs, the
// agent's equivalent of browser object URLs.
package preview

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPrefix is where the agent mounts preview URLs.
const DefaultPrefix = "/v1/previews/"

type entry struct {
	data        []byte
	contentType string
	created     time.Time
}

// Store keeps published previews in memory until they are revoked.
type Store struct {
	prefix string

	mu    sync.RWMutex
	items map[string]entry
}

// NewStore creates a store issuing URLs under prefix.
func NewStore(prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{prefix: prefix, items: make(map[string]entry)}
}

// Publish stores data and returns its URL.
func (s *Store) Publish(data []byte, contentType string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.items[id] = entry{data: data, contentType: contentType, created: time.Now()}
	s.mu.Unlock()
	return s.prefix + id
}

// Revoke forgets the preview behind url. Unknown URLs are ignored.
func (s *Store) Revoke(url string) {
	id, ok := strings.CutPrefix(url, s.prefix)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Get returns the preview stored under id.
func (s *Store) Get(id string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, "", false
	}
	return e.data, e.contentType, true
}

// Len reports how many previews are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
