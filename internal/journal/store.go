package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists journal entries.
type Store interface {
	// Insert stores e. Replays of an already stored event id report false.
	Insert(ctx context.Context, e Event) (bool, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// MemoryStore keeps the most recent entries in process.
type MemoryStore struct {
	max int

	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
}

// NewMemoryStore keeps up to max entries.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max, seen: make(map[string]struct{})}
}

func (m *MemoryStore) Insert(_ context.Context, e Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e.ID]; ok {
		return false, nil
	}
	m.seen[e.ID] = struct{}{}
	m.entries = append(m.entries, Entry{Event: e, RecordedAt: time.Now().UTC()})
	if len(m.entries) > m.max {
		drop := m.entries[0]
		delete(m.seen, drop.ID)
		m.entries = m.entries[1:]
	}
	return true, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	f = f.normalize()
	m.mu.Lock()
	var res []Entry
	for _, e := range m.entries {
		if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		res = append(res, e)
	}
	m.mu.Unlock()

	sort.SliceStable(res, func(i, j int) bool { return res[i].OccurredAt.After(res[j].OccurredAt) })
	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}
