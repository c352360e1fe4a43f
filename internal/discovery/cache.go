package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// CachedResolver memoizes successful resolutions for a fixed TTL so that many
// widgets polling the same backend do not each hit the API server. Failures are
// never cached.
type CachedResolver struct {
	next  Resolver
	cache otter.Cache[string, string]
}

// NewCachedResolver wraps next with a TTL cache holding up to capacity services.
func NewCachedResolver(next Resolver, ttl time.Duration, capacity int) (*CachedResolver, error) {
	cache, err := otter.MustBuilder[string, string](capacity).
		Cost(func(_ string, _ string) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

// Resolve implements Resolver
func (c *CachedResolver) Resolve(ctx context.Context, service string) (string, error) {
	if baseURL, ok := c.cache.Get(service); ok {
		return baseURL, nil
	}

	baseURL, err := c.next.Resolve(ctx, service)
	if err != nil {
		return "", err
	}
	c.cache.Set(service, baseURL)
	return baseURL, nil
}

// Invalidate drops a cached resolution
func (c *CachedResolver) Invalidate(service string) {
	c.cache.Delete(service)
}

// Close releases the cache's background resources
func (c *CachedResolver) Close() {
	c.cache.Close()
}
