package redisadapter

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupPrefix = "milestone-escrow:dedup:"

// EventDeduper reserves consumed event ids with SET NX.
type EventDeduper struct {
	rdb *redis.Client
}

func NewEventDeduper(rdb *redis.Client) *EventDeduper {
	return &EventDeduper{rdb: rdb}
}

// ReserveEvent reports true when eventID is already reserved.
func (d *EventDeduper) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := d.rdb.SetNX(ctx, dedupPrefix+strings.TrimSpace(eventID), payloadHash, ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (d *EventDeduper) ReleaseEvent(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, dedupPrefix+strings.TrimSpace(eventID)).Err()
}
