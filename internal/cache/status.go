// Package cache provides a best-effort Redis cache of order statuses.
// Every cache failure is logged and swallowed; Postgres stays the source of
// truth. Entries carry the owning user so cached reads can enforce the same
// ownership rule as repository reads.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bibliosphere/bookstore/internal/domain/order"
)

const (
	keyOrderStatus = "order_status:"
	statusTTL      = 5 * time.Minute
)

// StatusCache caches order statuses in Redis. A nil *StatusCache is valid
// and does nothing, so callers need no wiring-time conditionals.
type StatusCache struct {
	rdb *redis.Client
	lg  *zap.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, addr string, lg *zap.Logger) (*StatusCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &StatusCache{rdb: rdb, lg: lg}, nil
}

type statusEntry struct {
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

// Get returns the cached status and owning user for an order, or "", "" on
// miss. Entries written before the owner field existed fail to decode and
// count as misses.
func (c *StatusCache) Get(ctx context.Context, orderID string) (owner string, status order.Status) {
	if c == nil {
		return "", ""
	}
	val, err := c.rdb.Get(ctx, keyOrderStatus+orderID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.lg.Warn("order status cache read failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
		return "", ""
	}
	var e statusEntry
	if err := json.Unmarshal([]byte(val), &e); err != nil || e.Owner == "" || e.Status == "" {
		return "", ""
	}
	return e.Owner, order.Status(e.Status)
}

// Set records the current status and owner for an order.
func (c *StatusCache) Set(ctx context.Context, orderID, owner string, status order.Status) {
	if c == nil {
		return
	}
	val, err := json.Marshal(statusEntry{Owner: owner, Status: string(status)})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyOrderStatus+orderID, val, statusTTL).Err(); err != nil {
		c.lg.Warn("order status cache write failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

// Close releases the Redis connection.
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Ping reports connection health, for readiness checks.
func (c *StatusCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}
