package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"custodia/pkg/platform/sentinel"
)

var findDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "custodia_access_cache_find_duration_ms",
	Help:    "Latency of access-decision cache lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Decision keys: acl:<evidenceId>:<principal> -> "1"/"0".
	decisionKeyPrefix = "acl:"
	// Per-evidence principal sets, used to invalidate every cached
	// decision for one item without a keyspace scan.
	principalSetPrefix = "aclidx:"
)

// RedisCache is the distributed decision cache for multi-instance
// deployments. Decisions carry the configured TTL; the per-evidence index set
// is kept alive slightly longer so invalidation still finds expired members.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func decisionKey(evidenceID int64, principal string) string {
	return decisionKeyPrefix + strconv.FormatInt(evidenceID, 10) + ":" + principal
}

func principalSetKey(evidenceID int64) string {
	return principalSetPrefix + strconv.FormatInt(evidenceID, 10)
}

func (c *RedisCache) Find(ctx context.Context, evidenceID int64, principal string) (bool, error) {
	start := time.Now()
	defer func() {
		findDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	value, err := c.client.Get(ctx, decisionKey(evidenceID, principal)).Result()
	if errors.Is(err, redis.Nil) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}
	return value == "1", nil
}

func (c *RedisCache) Save(ctx context.Context, evidenceID int64, principal string, allowed bool) error {
	value := "0"
	if allowed {
		value = "1"
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, decisionKey(evidenceID, principal), value, c.ttl)
	pipe.SAdd(ctx, principalSetKey(evidenceID), principal)
	pipe.Expire(ctx, principalSetKey(evidenceID), c.ttl*2)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, evidenceID int64) error {
	principals, err := c.client.SMembers(ctx, principalSetKey(evidenceID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	if len(principals) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, principal := range principals {
		pipe.Del(ctx, decisionKey(evidenceID, principal))
	}
	pipe.Del(ctx, principalSetKey(evidenceID))
	_, err = pipe.Exec(ctx)
	return err
}
