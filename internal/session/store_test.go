package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chatapi/portal/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testSession(id, userID string, now time.Time) *model.Session {
	return &model.Session{
		SessionID: id,
		Email:     "user@example.com",
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultLifetime),
	}
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now

	s := testSession("abc", "user-1", clock.t)
	if err := store.Put(ctx, "abc", s, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, s.ExpiresAt)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now

	s := testSession("abc", "user-1", clock.t)
	if err := store.Put(ctx, "abc", s, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.advance(2 * time.Minute)

	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl elapsed, got %v", err)
	}

	// Get already reclaimed the entry, so a sweep finds nothing.
	n, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("sweep count = %d, want 0 (entry already gone)", n)
	}
}

func TestMemorySweepExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now

	store.Put(ctx, "old", testSession("old", "u1", clock.t), time.Minute)
	store.Put(ctx, "new", testSession("new", "u2", clock.t), time.Hour)

	clock.advance(10 * time.Minute)

	n, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep count = %d, want 1", n)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("surviving session should still be readable: %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, "abc", testSession("abc", "u1", time.Now()), time.Hour)
	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Fallback
// ---------------------------------------------------------------------------

// failingStore simulates an unreachable cache: every operation errors.
type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Put(context.Context, string, *model.Session, time.Duration) error {
	return errDown
}
func (failingStore) Get(context.Context, string) (*model.Session, error) { return nil, errDown }
func (failingStore) Delete(context.Context, string) error                { return errDown }
func (failingStore) SweepExpired(context.Context) (int, error)           { return 0, errDown }
func (failingStore) Ping(context.Context) error                          { return errDown }

func TestFallbackDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	fb := NewFallback(failingStore{}, mem, discardLogger())

	s := testSession("abc", "user-1", time.Now())
	if err := fb.Put(ctx, "abc", s, time.Hour); err != nil {
		t.Fatalf("Put should degrade to memory, got error: %v", err)
	}

	got, err := fb.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get should read from memory: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}
}

func TestFallbackNilPrimaryUsesMemory(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	fb := NewFallback(nil, mem, discardLogger())

	if err := fb.Put(ctx, "abc", testSession("abc", "u1", time.Now()), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if mem.Len() != 1 {
		t.Errorf("memory Len = %d, want 1", mem.Len())
	}
	if err := fb.Ping(ctx); err != nil {
		t.Errorf("Ping on memory-only fallback: %v", err)
	}
}

// flakyStore fails Ping but would succeed on data operations; the probe
// alone must route traffic to memory.
type flakyStore struct {
	*MemoryStore
}

func (f *flakyStore) Ping(context.Context) error { return errDown }

func TestFallbackProbeFailureRoutesToMemory(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{MemoryStore: NewMemoryStore()}
	mem := NewMemoryStore()
	fb := NewFallback(primary, mem, discardLogger())

	fb.Put(ctx, "abc", testSession("abc", "u1", time.Now()), time.Hour)

	if primary.Len() != 0 {
		t.Errorf("primary should never be written when the probe fails, has %d entries", primary.Len())
	}
	if mem.Len() != 1 {
		t.Errorf("memory Len = %d, want 1", mem.Len())
	}
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	m := NewManager(store, discardLogger())
	m.now = clock.now
	return m, store, clock
}

func TestManagerCreateIDFormat(t *testing.T) {
	m, _, _ := newTestManager(t)
	id, err := m.Create(context.Background(), "a@b.c", "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(id))
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("session ID contains non-hex character %q", c)
		}
	}
}

func TestManagerValidateRenewsExpiry(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t)

	id, err := m.Create(ctx, "a@b.c", "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.advance(10 * 24 * time.Hour) // still within the 14-day window

	s, err := m.Validate(ctx, id)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	wantExpiry := clock.t.Add(DefaultLifetime)
	if !s.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want renewed to %v", s.ExpiresAt, wantExpiry)
	}

	// The renewal must be persisted, not just returned.
	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after renewal: %v", err)
	}
	if !stored.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("stored ExpiresAt = %v, want %v", stored.ExpiresAt, wantExpiry)
	}
}

func TestManagerValidateExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t)

	id, _ := m.Create(ctx, "a@b.c", "user-1")

	// Expire the stored session itself but keep the map entry alive, so the
	// manager's own expiry check is exercised rather than the store's TTL.
	s, _ := store.Get(ctx, id)
	s.ExpiresAt = clock.t.Add(-time.Minute)
	store.Put(ctx, id, s, time.Hour)

	if _, err := m.Validate(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session should have been deleted from the store")
	}
}

func TestManagerDestroy(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	id, _ := m.Create(ctx, "a@b.c", "user-1")
	if err := m.Destroy(ctx, id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := m.Validate(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after destroy, got %v", err)
	}
}

func TestAbbrev(t *testing.T) {
	if got := Abbrev("abcdefghijkl"); got != "abcdefgh..." {
		t.Errorf("Abbrev = %q", got)
	}
	if got := Abbrev("short"); got != "short" {
		t.Errorf("Abbrev short = %q", got)
	}
}
