package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// Manager issues, validates, and destroys sessions on top of a Store.
// Validation renews the sliding expiration window as a side effect.
type Manager struct {
	store  Store
	logger *slog.Logger

	lifetime time.Duration
	now      func() time.Time
}

// NewManager creates a Manager with the standard 14-day sliding lifetime.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		logger:   logger,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
}

// Create issues a new session for a permissionless user and returns its ID:
// 32 random bytes, hex-encoded.
func (m *Manager) Create(ctx context.Context, email, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	id := hex.EncodeToString(buf)

	now := m.now()
	s := &model.Session{
		SessionID: id,
		Email:     email,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}
	if err := m.store.Put(ctx, id, s, m.lifetime); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	m.logger.Info("session created", "session_id", Abbrev(id), "user_id", userID)
	return id, nil
}

// Validate looks up a session, rejecting and deleting it when expired, and
// renews the expiration to a fresh full lifetime on success. Renewal
// failures are logged and swallowed; the session is still valid now.
func (m *Manager) Validate(ctx context.Context, id string) (*model.Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if s.Expired(now) {
		m.logger.Info("session expired, removing", "session_id", Abbrev(id))
		if delErr := m.store.Delete(ctx, id); delErr != nil {
			m.logger.Warn("failed to delete expired session", "session_id", Abbrev(id), "error", delErr)
		}
		return nil, ErrNotFound
	}

	s.ExpiresAt = now.Add(m.lifetime)
	if err := m.store.Put(ctx, id, s, m.lifetime); err != nil {
		m.logger.Warn("session renewal failed", "session_id", Abbrev(id), "error", err)
	}
	return s, nil
}

// Destroy removes a session. Missing sessions are not an error.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Sweep removes expired entries from the backing store and reports how many
// it reclaimed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.SweepExpired(ctx)
}

// Abbrev shortens a session ID for logging; full IDs never hit the logs.
func Abbrev(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
