// Package cache provides the analysis result cache, per-event import locks
// and audit pub/sub, backed by memory or Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
)

// Common errors
var (
	ErrCacheMiss = errors.New("cache miss")
	ErrLockHeld  = errors.New("lock held by another owner")
)

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ReleaseFunc releases a held lock. Releasing a lock that expired or was
// taken over is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out exclusive, expiring locks.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// Publisher publishes JSON messages to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Backend is a cache that also provides locks and pub/sub.
type Backend interface {
	Client
	Locker
	Publisher
}

// New creates the configured backend.
func New(cfg config.CacheConfig) (Backend, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryClient(0), nil
	case "redis":
		return NewRedisClient(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// CacheKey generates a cache key from components.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// AnalysisKey is the cache key of a dry-run result for file content.
func AnalysisKey(contentHash string) string {
	return CacheKey("analysis", contentHash)
}

// ImportLockKey is the lock key serializing imports into one event.
func ImportLockKey(eventID string) string {
	return CacheKey("lock", "import", eventID)
}
