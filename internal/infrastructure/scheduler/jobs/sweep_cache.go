package jobs

import (
	"context"

	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
)

// SweepCache periodically evicts expired entries from the in-process cache
// tier. Eviction is otherwise lazy, so without the sweep a key nobody reads
// again would sit in memory until restart.
type SweepCache struct {
	cache *cache.TwoTierCache
}

// NewSweepCache creates the job.
func NewSweepCache(c *cache.TwoTierCache) *SweepCache {
	return &SweepCache{cache: c}
}

// Name implements scheduler.Job.
func (j *SweepCache) Name() string { return "sweep_cache" }

// Description implements scheduler.Job.
func (j *SweepCache) Description() string {
	return "evicts expired entries from the in-process cache tier"
}

// Run implements scheduler.Job.
func (j *SweepCache) Run(ctx context.Context) error {
	return j.cache.ClearExpired(ctx)
}
