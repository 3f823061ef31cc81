package session

import (
	"context"
	"sync"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// MemoryStore is the process-local fallback store: a mutex-guarded map with
// per-entry deadlines. Unlike the cache backend there is no native reaper,
// so expired entries linger until a Get touches them or SweepExpired runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	now func() time.Time // overridable in tests
}

type memoryEntry struct {
	session  *model.Session
	deadline time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, id string, s *model.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.entries[id] = memoryEntry{session: &cp, deadline: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.deadline) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	cp := *e.session
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// SweepExpired removes every entry whose deadline has elapsed and returns
// how many were removed.
func (m *MemoryStore) SweepExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	count := 0
	for id, e := range m.entries {
		if !now.Before(e.deadline) {
			delete(m.entries, id)
			count++
		}
	}
	return count, nil
}

// Ping always succeeds; memory is never unreachable.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Len reports the number of live-or-stale entries currently held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
