package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache is a best-effort dedup filter backed by redis SETNX keys.
// Errors are swallowed: a miss only means the durable store does the
// dedup instead.
type SeenCache struct {
	RDB    *redis.Client
	KeyFmt string
	TTL    time.Duration
}

func NewWebhookSeenCache(rdb *redis.Client) *SeenCache {
	return &SeenCache{RDB: rdb, KeyFmt: KeyWebhookSeen, TTL: TTLWebhookSeen}
}

func (c *SeenCache) Seen(ctx context.Context, id string) bool {
	if c.RDB == nil {
		return false
	}
	ok, err := Exists(ctx, c.RDB, fmt.Sprintf(c.KeyFmt, id))
	return err == nil && ok
}

func (c *SeenCache) Mark(ctx context.Context, id string) {
	if c.RDB == nil {
		return
	}
	c.RDB.SetNX(ctx, fmt.Sprintf(c.KeyFmt, id), "1", c.TTL)
}
