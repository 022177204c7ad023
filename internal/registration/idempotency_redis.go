package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"custodia/pkg/platform/sentinel"
)

const (
	// Committed mappings: idem:<fingerprint> -> evidenceId.
	mappingKeyPrefix = "idem:"
	// In-flight gates: idemgate:<fingerprint> -> "1", claimed via SET NX.
	gateKeyPrefix = "idemgate:"

	// A crashed holder must not wedge the fingerprint forever.
	gateTTL = 2 * time.Minute
)

// RedisIdempotency is the shared idempotency ledger for multi-instance
// deployments. Gates are claimed atomically with SET NX so identical
// submissions landing on different instances still serialize.
type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (r *RedisIdempotency) Find(ctx context.Context, fingerprint string) (int64, error) {
	value, err := r.client.Get(ctx, mappingKeyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("idempotency lookup: %w", err)
	}
	evidenceID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt idempotency mapping %q: %w", value, err)
	}
	return evidenceID, nil
}

func (r *RedisIdempotency) Acquire(ctx context.Context, fingerprint string) (bool, error) {
	// A live committed mapping blocks new registrations outright; callers
	// converge through Find instead.
	exists, err := r.client.Exists(ctx, mappingKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("check committed mapping: %w", err)
	}
	if exists > 0 {
		return false, nil
	}
	acquired, err := r.client.SetNX(ctx, gateKeyPrefix+fingerprint, "1", gateTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire registration gate: %w", err)
	}
	return acquired, nil
}

func (r *RedisIdempotency) Release(ctx context.Context, fingerprint string) error {
	return r.client.Del(ctx, gateKeyPrefix+fingerprint).Err()
}

func (r *RedisIdempotency) Record(ctx context.Context, fingerprint string, evidenceID int64) error {
	pipe := r.client.Pipeline()
	pipe.Set(ctx, mappingKeyPrefix+fingerprint, strconv.FormatInt(evidenceID, 10), r.ttl)
	pipe.Del(ctx, gateKeyPrefix+fingerprint)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record idempotency mapping: %w", err)
	}
	return nil
}
