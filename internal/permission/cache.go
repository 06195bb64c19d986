// Package permission caches the last known camera and location permission
// outcomes. The platform stays the source of truth; the cache only decides
// whether to show the permission screen first.
package permission

import (
	"context"
	"sync"
)

// Grant is the cached outcome for one permission.
type Grant string

const (
	Unasked Grant = "unasked"
	Granted Grant = "granted"
	Denied  Grant = "denied"
)

// Status holds both permissions.
type Status struct {
	Camera   Grant `json:"camera"`
	Location Grant `json:"location"`
}

// Normalize replaces empty grants with Unasked.
func (s Status) Normalize() Status {
	if s.Camera == "" {
		s.Camera = Unasked
	}
	if s.Location == "" {
		s.Location = Unasked
	}
	return s
}

// AllGranted reports whether both permissions were granted last time.
func (s Status) AllGranted() bool {
	return s.Camera == Granted && s.Location == Granted
}

// Granted reports whether every permission a capture needs was granted
// last time. Location is always needed; the camera only when withCamera.
func (s Status) Granted(withCamera bool) bool {
	if withCamera {
		return s.AllGranted()
	}
	return s.Location == Granted
}

// Cache persists Status between sessions.
type Cache interface {
	Load(ctx context.Context) (Status, error)
	Store(ctx context.Context, s Status) error
}

// MemoryCache keeps Status for the life of the process.
type MemoryCache struct {
	mu     sync.Mutex
	status Status
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{status: Status{}.Normalize()}
}

func (c *MemoryCache) Load(context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *MemoryCache) Store(_ context.Context, s Status) error {
	c.mu.Lock()
	c.status = s.Normalize()
	c.mu.Unlock()
	return nil
}
