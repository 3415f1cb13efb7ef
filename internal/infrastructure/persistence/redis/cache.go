// Package redis implements the persisted cache tier for Comportamento Hub.
// Redis gives the second tier its durability across process restarts and its
// native TTL handling; the in-process tier and the policy around it live in
// internal/infrastructure/cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolTimeout is the timeout for getting a connection from the pool.
	PoolTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnection is returned when the Redis connection fails.
	ErrConnection = errors.New("redis: connection failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTED TIER
// ══════════════════════════════════════════════════════════════════════════════

// Tier implements cache.PersistedTier on top of a Redis client.
type Tier struct {
	client *redis.Client
	config Config
}

// Compile-time interface check.
var _ cache.PersistedTier = (*Tier)(nil)

// NewTier connects to Redis and returns the persisted tier.
func NewTier(cfg Config) (*Tier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &Tier{client: client, config: cfg}, nil
}

// Client returns the underlying Redis client for advanced operations.
func (t *Tier) Client() *redis.Client {
	return t.client
}

// Close closes the Redis connection.
func (t *Tier) Close() error {
	return t.client.Close()
}

// Ping checks if Redis is reachable.
func (t *Tier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Get returns the stored bytes and the remaining lifetime for key.
// GET and PTTL are pipelined so both reflect the same server moment.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	pipe := t.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, cache.ErrMiss
		}
		return nil, 0, err
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, cache.ErrMiss
		}
		return nil, 0, err
	}

	remaining := ttlCmd.Val()
	if remaining <= 0 {
		// Key without a TTL should not exist in this tier; treat as a miss
		// and let the caller drop it.
		return nil, 0, cache.ErrMiss
	}

	return data, remaining, nil
}

// Set stores bytes under key with the given lifetime.
func (t *Tier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return t.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys, tolerating absence.
func (t *Tier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return t.client.Del(ctx, keys...).Err()
}

// DeleteByPrefix removes every key starting with prefix, batching deletions
// while SCANning to keep memory bounded.
func (t *Tier) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := t.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := t.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return t.client.Del(ctx, keys...).Err()
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys natively, so the sweep
// only matters for the in-process tier.
func (t *Tier) DeleteExpired(ctx context.Context) error {
	return nil
}

// Clear wipes the current database unconditionally.
func (t *Tier) Clear(ctx context.Context) error {
	return t.client.FlushDB(ctx).Err()
}

// DBSize returns the number of keys in the current database.
func (t *Tier) DBSize(ctx context.Context) (int64, error) {
	return t.client.DBSize(ctx).Result()
}
