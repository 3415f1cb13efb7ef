// Package cache implements the two-tier expiring key/value store that shields
// read paths from redundant remote reads: an in-process tier checked first,
// backed by a persisted tier (Redis) that survives process restarts and
// repopulates the in-process tier on miss.
//
// The cache is an optimization, never a correctness dependency: persisted-tier
// failures are swallowed after an expired-entry sweep, and staleness is
// bounded by TTL alone. Write paths never populate the cache; they invalidate
// by prefix.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMiss is returned when the requested key is absent from both tiers.
	ErrMiss = errors.New("cache: key not found")

	// ErrKeyEmpty is returned when an empty key is provided.
	ErrKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrInvalidTTL is returned when a non-positive TTL is provided.
	ErrInvalidTTL = errors.New("cache: invalid TTL")

	// ErrSerialization is returned when a value cannot be marshaled.
	ErrSerialization = errors.New("cache: serialization failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTED TIER
// ══════════════════════════════════════════════════════════════════════════════

// PersistedTier is the durable second tier. The Redis implementation lives in
// infrastructure/persistence/redis; tests supply an in-memory fake.
type PersistedTier interface {
	// Get returns the stored bytes and the remaining lifetime.
	// Returns ErrMiss when the key is absent or already expired.
	Get(ctx context.Context, key string) (data []byte, remaining time.Duration, err error)

	// Set stores bytes under key with the given lifetime.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes keys, tolerating absence.
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error

	// DeleteExpired sweeps entries whose lifetime has lapsed.
	DeleteExpired(ctx context.Context) error

	// Clear wipes the tier unconditionally.
	Clear(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// TWO-TIER CACHE
// ══════════════════════════════════════════════════════════════════════════════

// entry is one in-process cache slot.
type entry struct {
	data     []byte
	expiry   time.Time
	cachedAt time.Time
}

// TwoTierCache is the two-tier expiring store. It is constructed explicitly
// and passed to its consumers; there is no package-level instance, so tests
// get isolation from fresh instances.
type TwoTierCache struct {
	mu        sync.RWMutex
	local     map[string]entry
	persisted PersistedTier
	clock     shared.Clock
	log       *logger.Logger
}

// New creates a TwoTierCache over the given persisted tier. A nil persisted
// tier degrades to a purely in-process cache.
func New(persisted PersistedTier, clock shared.Clock, log *logger.Logger) *TwoTierCache {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &TwoTierCache{
		local:     make(map[string]entry),
		persisted: persisted,
		clock:     clock,
		log:       log.With(logger.Component("cache")),
	}
}

// Get retrieves a value into dest. The in-process tier is authoritative for
// the current session; the persisted tier is consulted on miss and, on a hit,
// repopulates the in-process tier. Returns ErrMiss when absent in both.
func (c *TwoTierCache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrKeyEmpty
	}

	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.local[key]
	c.mu.RUnlock()

	if ok {
		if now.Before(e.expiry) {
			return unmarshal(e.data, dest)
		}
		// Expired: evict lazily and fall through to the persisted tier.
		c.mu.Lock()
		delete(c.local, key)
		c.mu.Unlock()
	}

	if c.persisted == nil {
		return ErrMiss
	}

	data, remaining, err := c.persisted.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return ErrMiss
		}
		// Persisted-tier trouble is not the caller's problem.
		c.log.Warn("persisted tier read failed", logger.CacheKey(key), logger.Err(err))
		return ErrMiss
	}
	if remaining <= 0 {
		_ = c.persisted.Delete(ctx, key)
		return ErrMiss
	}

	c.mu.Lock()
	c.local[key] = entry{data: data, expiry: now.Add(remaining), cachedAt: now}
	c.mu.Unlock()

	return unmarshal(data, dest)
}

// Set stores a value in the in-process tier and, when persist is true, in the
// persisted tier as well. A persisted-tier failure (capacity, serialization
// on the far side) is non-fatal: it triggers an expired-entry sweep and the
// in-process write still stands.
func (c *TwoTierCache) Set(ctx context.Context, key string, value any, ttl time.Duration, persist bool) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	now := c.clock.Now()

	c.mu.Lock()
	c.local[key] = entry{data: data, expiry: now.Add(ttl), cachedAt: now}
	c.mu.Unlock()

	if persist && c.persisted != nil {
		if err := c.persisted.Set(ctx, key, data, ttl); err != nil {
			c.log.Warn("persisted tier write failed, sweeping expired entries",
				logger.CacheKey(key), logger.Err(err))
			if sweepErr := c.ClearExpired(ctx); sweepErr != nil {
				c.log.Warn("expired-entry sweep failed", logger.Err(sweepErr))
			}
		}
	}

	return nil
}

// Remove deletes a key from both tiers, tolerating absence.
func (c *TwoTierCache) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyEmpty
	}

	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()

	if c.persisted != nil {
		if err := c.persisted.Delete(ctx, key); err != nil {
			c.log.Warn("persisted tier delete failed", logger.CacheKey(key), logger.Err(err))
		}
	}
	return nil
}

// ClearByPrefix deletes all entries in both tiers whose key starts with
// prefix. Used to invalidate an entire category (e.g. every cached record of
// one student) without enumerating exact keys.
func (c *TwoTierCache) ClearByPrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return ErrKeyEmpty
	}

	c.mu.Lock()
	for key := range c.local {
		if strings.HasPrefix(key, prefix) {
			delete(c.local, key)
		}
	}
	c.mu.Unlock()

	if c.persisted != nil {
		if err := c.persisted.DeleteByPrefix(ctx, prefix); err != nil {
			c.log.Warn("persisted tier prefix clear failed",
				logger.String("prefix", prefix), logger.Err(err))
		}
	}
	return nil
}

// ClearExpired sweeps both tiers, deleting any entry whose lifetime lapsed.
// Invoked opportunistically when a persisted-tier write fails.
func (c *TwoTierCache) ClearExpired(ctx context.Context) error {
	now := c.clock.Now()

	c.mu.Lock()
	for key, e := range c.local {
		if !now.Before(e.expiry) {
			delete(c.local, key)
		}
	}
	c.mu.Unlock()

	if c.persisted != nil {
		return c.persisted.DeleteExpired(ctx)
	}
	return nil
}

// ClearAll wipes both tiers unconditionally.
func (c *TwoTierCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	c.local = make(map[string]entry)
	c.mu.Unlock()

	if c.persisted != nil {
		return c.persisted.Clear(ctx)
	}
	return nil
}

// LocalLen returns the number of live in-process entries (expired entries
// still pending lazy eviction included). Used by tests and stats.
func (c *TwoTierCache) LocalLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}

func unmarshal(data []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}
