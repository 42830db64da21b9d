package redisadapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	payerProfilePrefix     = "milestone-escrow:payer-profile:"
	DefaultPayerProfileTTL = 24 * time.Hour
)

// PayerProfileCache keeps payer profile ids in Redis so repeat escrow
// creation skips the account lookup.
type PayerProfileCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPayerProfileCache(rdb *redis.Client, ttl time.Duration) *PayerProfileCache {
	if ttl <= 0 {
		ttl = DefaultPayerProfileTTL
	}
	return &PayerProfileCache{rdb: rdb, ttl: ttl}
}

func (c *PayerProfileCache) GetPayerProfile(ctx context.Context, userID string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, payerProfilePrefix+strings.TrimSpace(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, value != "", nil
}

func (c *PayerProfileCache) PutPayerProfile(ctx context.Context, userID string, payerProfileID string) error {
	return c.rdb.Set(ctx, payerProfilePrefix+strings.TrimSpace(userID), payerProfileID, c.ttl).Err()
}
