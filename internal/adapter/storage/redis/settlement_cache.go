package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// SettlementCache implements ports.SettlementCache using Redis.
// Only terminal statuses are stored; a miss means "ask the ledger".
type SettlementCache struct {
	client *goredis.Client
}

// NewSettlementCache creates a new Redis-backed settlement cache.
func NewSettlementCache(client *goredis.Client) *SettlementCache {
	return &SettlementCache{client: client}
}

// Get returns the cached terminal status of a reference.
func (c *SettlementCache) Get(ctx context.Context, reference string) (domain.TransactionStatus, bool, error) {
	val, err := c.client.Get(ctx, domain.SettlementCacheKey(reference)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis settlement get: %w", err)
	}

	status, err := domain.ParseTransactionStatus(val)
	if err != nil {
		return "", false, fmt.Errorf("redis settlement get: %w", err)
	}
	return status, true, nil
}

// Set remembers a terminal status with TTL. Pending is never cached.
func (c *SettlementCache) Set(ctx context.Context, reference string, status domain.TransactionStatus, ttl time.Duration) error {
	if !status.IsTerminal() {
		return nil
	}
	if err := c.client.Set(ctx, domain.SettlementCacheKey(reference), string(status), ttl).Err(); err != nil {
		return fmt.Errorf("redis settlement set: %w", err)
	}
	return nil
}
