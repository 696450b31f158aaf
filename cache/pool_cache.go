// Package cache provides the read-side pool cache. The store stays the
// source of truth; every miss must fall through to it.
package cache

import (
	"context"
	"sync"
	"time"

	"jackpotd/domain/entities"
	"jackpotd/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const poolsKey = "jackpot:pools"

// PoolCache layers a process-local hot tier over a shared warm tier.
// Reads check hot then warm; writes and invalidations touch both. A
// warm-tier failure degrades to a miss, never to an error.
type PoolCache struct {
	warm    interfaces.Cache
	hotTTL  time.Duration
	warmTTL time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	pools     []*entities.JackpotPool
	expiresAt time.Time
}

// NewPoolCache creates a pool cache. The warm tier may be nil, leaving
// only the process-local tier active.
func NewPoolCache(warm interfaces.Cache, hotTTL, warmTTL time.Duration) *PoolCache {
	if hotTTL <= 0 {
		hotTTL = 2 * time.Second
	}
	if warmTTL <= 0 {
		warmTTL = 30 * time.Second
	}
	return &PoolCache{
		warm:    warm,
		hotTTL:  hotTTL,
		warmTTL: warmTTL,
		now:     time.Now,
	}
}

// GetPools returns the cached pool set and whether it was present.
// Callers own the returned slice.
func (c *PoolCache) GetPools(ctx context.Context) ([]*entities.JackpotPool, bool) {
	c.mu.RLock()
	if c.pools != nil && c.now().Before(c.expiresAt) {
		pools := clonePools(c.pools)
		c.mu.RUnlock()
		return pools, true
	}
	c.mu.RUnlock()

	if c.warm == nil {
		return nil, false
	}

	var pools []*entities.JackpotPool
	found, err := c.warm.Get(ctx, poolsKey, &pools)
	if err != nil {
		log.WithError(err).Warn("Warm pool cache read failed")
		return nil, false
	}
	if !found || len(pools) == 0 {
		return nil, false
	}

	c.storeHot(pools)
	return clonePools(pools), true
}

// SetPools refreshes both tiers after a successful store read
func (c *PoolCache) SetPools(ctx context.Context, pools []*entities.JackpotPool) {
	c.storeHot(pools)

	if c.warm == nil {
		return
	}
	if err := c.warm.Set(ctx, poolsKey, pools, c.warmTTL); err != nil {
		log.WithError(err).Warn("Warm pool cache write failed")
	}
}

// Invalidate drops both tiers after a pool mutation
func (c *PoolCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.pools = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	if c.warm == nil {
		return
	}
	if err := c.warm.Delete(ctx, poolsKey); err != nil {
		log.WithError(err).Warn("Warm pool cache invalidation failed")
	}
}

func (c *PoolCache) storeHot(pools []*entities.JackpotPool) {
	cloned := clonePools(pools)
	c.mu.Lock()
	c.pools = cloned
	c.expiresAt = c.now().Add(c.hotTTL)
	c.mu.Unlock()
}

// clonePools copies the set so cached entries are never shared with
// callers that may mutate them.
func clonePools(pools []*entities.JackpotPool) []*entities.JackpotPool {
	out := make([]*entities.JackpotPool, len(pools))
	for i, p := range pools {
		cp := *p
		out[i] = &cp
	}
	return out
}
