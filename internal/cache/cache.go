// Package cache wraps Redis for the two things the relayer and
// distribution surface need externalized: round-processing dedup markers
// and the private-view challenge replay guard. Both are one key per
// identity, TTL-bounded, claimed with SETNX.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// Cache wraps a go-redis client.
type Cache struct {
	client *redis.Client
}

// New connects to addr/password/db.
func New(addr, password string, db int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// MarkRoundProcessed records that roundID's pipeline has run, with a TTL
// long enough to survive a relayer restart without reprocessing. Returns
// true if this call is the one that set the marker (SETNX semantics),
// false if another process already claimed it.
func (c *Cache) MarkRoundProcessed(ctx context.Context, roundID domain.Hash, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("shadowpool:round:processed:%s", roundID.Hex())
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: mark round processed: %w", err)
	}
	return ok, nil
}

// MarkChallengeUsed records a private-view challenge signature as spent,
// to defend against replay within the challenge TTL even across distribution
// replicas. Returns false if the challenge was already used.
func (c *Cache) MarkChallengeUsed(ctx context.Context, address domain.Address, timestampSec uint64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("shadowpool:challenge:%s:%d", address.Hex(), timestampSec)
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: mark challenge used: %w", err)
	}
	return ok, nil
}
