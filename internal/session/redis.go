package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatapi/portal/internal/model"
)

const keyPrefix = "session:"

// RedisConfig holds the connection settings for the external cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Configured reports whether a cache host is set at all. Without one the
// portal runs on the in-memory store only.
func (c RedisConfig) Configured() bool { return c.Host != "" }

// RedisStore keeps sessions in the external cache with native per-key
// expiration, so expired entries are reaped without any sweeping on our
// side. SweepExpired only catches keys that somehow lost their TTL.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore dials the cache lazily; connectivity is only observed via
// Ping and the individual commands.
func NewRedisStore(cfg RedisConfig, logger *slog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	return &RedisStore{client: client, logger: logger}
}

func (r *RedisStore) Put(ctx context.Context, id string, s *model.Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+id, b, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.Session, error) {
	val, err := r.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

// SweepExpired deletes session keys that exist without an expiration (TTL
// of -1). The cache reaps properly TTL'd keys on its own.
func (r *RedisStore) SweepExpired(ctx context.Context) (int, error) {
	keys, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return 0, fmt.Errorf("cache keys: %w", err)
	}
	count := 0
	for _, key := range keys {
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil {
			r.logger.Warn("session sweep: ttl lookup failed", "key", key, "error", err)
			continue
		}
		// go-redis reports "no expiration" as -1 and "gone" as -2.
		if ttl == -1 {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				r.logger.Warn("session sweep: delete failed", "key", key, "error", err)
				continue
			}
			count++
		}
	}
	return count, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying cache connection.
func (r *RedisStore) Close() error { return r.client.Close() }
