package featurestore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/inference-sim/bandit-router/router"
)

// Cached is a read-through TTL cache in front of another FeatureStore.
// Only successful lookups are cached, so a miss or timeout is retried on the
// next request for the same key.
type Cached struct {
	backend router.FeatureStore
	cache   *ttlcache.Cache[string, router.Context]
}

var _ router.FeatureStore = &Cached{}

// NewCached wraps backend with a cache of at most capacity keys (0 means
// unbounded), each kept for ttl. Call Start to run the expiry janitor and
// Stop to halt it.
func NewCached(backend router.FeatureStore, ttl time.Duration, capacity uint64) *Cached {
	opts := []ttlcache.Option[string, router.Context]{
		ttlcache.WithTTL[string, router.Context](ttl),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, router.Context](capacity))
	}
	return &Cached{backend: backend, cache: ttlcache.New(opts...)}
}

// Start runs the expiry janitor in a new goroutine.
func (c *Cached) Start() { go c.cache.Start() }

// Stop halts the expiry janitor.
func (c *Cached) Stop() { c.cache.Stop() }

// Len returns the number of cached keys.
func (c *Cached) Len() int { return c.cache.Len() }

// Invalidate drops key from the cache.
func (c *Cached) Invalidate(key string) { c.cache.Delete(key) }

// FetchContext implements router.FeatureStore.
func (c *Cached) FetchContext(ctx context.Context, requestKey string) (router.Context, error) {
	if item := c.cache.Get(requestKey); item != nil {
		return item.Value().Clone(), nil
	}
	rc, err := c.backend.FetchContext(ctx, requestKey)
	if err != nil {
		return router.Context{}, err
	}
	c.cache.Set(requestKey, rc.Clone(), ttlcache.DefaultTTL)
	return rc, nil
}
