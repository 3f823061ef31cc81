// Package session owns the opaque session tokens issued to permissionless
// users. Sessions live in an external cache when one is configured and
// reachable, with a process-local fallback otherwise. The fallback's content
// does not survive a restart and is not shared across instances; the cache
// is the source of truth when available.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// ErrNotFound is returned by Get when no live session exists for an ID.
var ErrNotFound = errors.New("session not found")

// DefaultLifetime is the sliding session window: 14 days, renewed to a
// fresh 14 days on every successful validation.
const DefaultLifetime = 14 * 24 * time.Hour

// Store is a key/value store for sessions. Implementations set per-entry
// expiration from the ttl passed to Put; SweepExpired reclaims whatever the
// backend does not reap natively.
type Store interface {
	Put(ctx context.Context, id string, s *model.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
