package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// Fallback routes session operations to the external cache when it answers
// a cheap connectivity probe, and to the in-memory store otherwise. A cache
// fault mid-operation degrades to memory for that call only.
type Fallback struct {
	primary Store // nil when no cache is configured
	memory  Store
	logger  *slog.Logger

	probeTimeout time.Duration
}

// NewFallback wraps primary with an in-memory fallback. primary may be nil,
// in which case every operation goes straight to memory.
func NewFallback(primary Store, memory Store, logger *slog.Logger) *Fallback {
	return &Fallback{
		primary:      primary,
		memory:       memory,
		logger:       logger,
		probeTimeout: 2 * time.Second,
	}
}

// available probes the cache lazily, once per handling path. There is no
// persistent health-check loop.
func (f *Fallback) available(ctx context.Context) bool {
	if f.primary == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()
	if err := f.primary.Ping(probeCtx); err != nil {
		f.logger.Warn("session cache unreachable, using in-memory store", "error", err)
		return false
	}
	return true
}

func (f *Fallback) Put(ctx context.Context, id string, s *model.Session, ttl time.Duration) error {
	if f.available(ctx) {
		if err := f.primary.Put(ctx, id, s, ttl); err == nil {
			return nil
		} else {
			f.logger.Warn("session cache put failed, falling back to memory", "error", err)
		}
	}
	return f.memory.Put(ctx, id, s, ttl)
}

func (f *Fallback) Get(ctx context.Context, id string) (*model.Session, error) {
	if f.available(ctx) {
		s, err := f.primary.Get(ctx, id)
		if err == nil || err == ErrNotFound {
			return s, err
		}
		f.logger.Warn("session cache get failed, falling back to memory", "error", err)
	}
	return f.memory.Get(ctx, id)
}

func (f *Fallback) Delete(ctx context.Context, id string) error {
	// Delete from both: a session written to memory while the cache was
	// down must not resurrect once the cache comes back, and vice versa.
	var primaryErr error
	if f.available(ctx) {
		primaryErr = f.primary.Delete(ctx, id)
		if primaryErr != nil {
			f.logger.Warn("session cache delete failed", "error", primaryErr)
		}
	}
	if err := f.memory.Delete(ctx, id); err != nil {
		return err
	}
	return primaryErr
}

func (f *Fallback) SweepExpired(ctx context.Context) (int, error) {
	// The cache reaps its own entries; the manual sweep only matters for
	// the in-memory table (plus any cache keys that lost their TTL).
	total := 0
	if f.available(ctx) {
		n, err := f.primary.SweepExpired(ctx)
		if err != nil {
			f.logger.Warn("session cache sweep failed", "error", err)
		} else {
			total += n
		}
	}
	n, err := f.memory.SweepExpired(ctx)
	if err != nil {
		return total, err
	}
	return total + n, nil
}

func (f *Fallback) Ping(ctx context.Context) error {
	if f.primary != nil {
		return f.primary.Ping(ctx)
	}
	return f.memory.Ping(ctx)
}

// Close releases the cache connection when one is held.
func (f *Fallback) Close() error {
	if closer, ok := f.primary.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
