package access

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/platform/sentinel"
)

// Cache holds short-lived read-access decisions keyed by (evidenceId,
// principal). The TTL bounds the staleness window; Invalidate drops every
// principal's entry for one evidence item so grant/revoke take effect
// immediately on the common re-read path.
type Cache interface {
	Find(ctx context.Context, evidenceID int64, principal string) (bool, error)
	Save(ctx context.Context, evidenceID int64, principal string, allowed bool) error
	Invalidate(ctx context.Context, evidenceID int64) error
}

type cachedDecision struct {
	allowed  bool
	storedAt time.Time
}

// InMemoryCache provides a TTL-bounded decision cache for single-instance
// deployments and tests. Expired entries are evicted on read so the map does
// not grow without bound in a long-lived process.
type InMemoryCache struct {
	mu        sync.Mutex
	decisions map[int64]map[string]cachedDecision
	ttl       time.Duration
}

func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		decisions: make(map[int64]map[string]cachedDecision),
		ttl:       ttl,
	}
}

// Find returns the cached decision, or sentinel.ErrNotFound when absent or
// expired.
func (c *InMemoryCache) Find(_ context.Context, evidenceID int64, principal string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPrincipal := c.decisions[evidenceID]
	cached, ok := byPrincipal[principal]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if time.Since(cached.storedAt) >= c.ttl {
		delete(byPrincipal, principal)
		if len(byPrincipal) == 0 {
			delete(c.decisions, evidenceID)
		}
		return false, sentinel.ErrNotFound
	}
	return cached.allowed, nil
}

func (c *InMemoryCache) Save(_ context.Context, evidenceID int64, principal string, allowed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPrincipal, ok := c.decisions[evidenceID]
	if !ok {
		byPrincipal = make(map[string]cachedDecision)
		c.decisions[evidenceID] = byPrincipal
	}
	byPrincipal[principal] = cachedDecision{allowed: allowed, storedAt: time.Now()}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, evidenceID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.decisions, evidenceID)
	return nil
}
