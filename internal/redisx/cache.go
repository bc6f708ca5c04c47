package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cached orders are hashes: v is the version in unix microseconds (the
// order's updated_at, or the delete time for a tombstone) and body is the
// order JSON, empty for a tombstone.
var (
	// KEYS[1] order key; ARGV version, body, ttl ms
	fillOrderScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

	// KEYS[1] order key; ARGV version, body, ttl ms
	storeOrderScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)
)

// OrderCache implements orders.Cache. Redis failures are logged and
// treated as a miss; the store stays the source of truth.
type OrderCache struct {
	Redis *redis.Client
	TTL   time.Duration
	Log   *zap.Logger
}

func NewOrderCache(rdb *redis.Client, log *zap.Logger) *OrderCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderCache{Redis: rdb, TTL: TTLOrderCache, Log: log}
}

func orderKey(id string) string { return fmt.Sprintf(KeyOrder, id) }

func (c *OrderCache) GetOrder(ctx context.Context, id string) (orders.Order, bool) {
	if c == nil || c.Redis == nil {
		return orders.Order{}, false
	}
	b, err := c.Redis.HGet(ctx, orderKey(id), "body").Bytes()
	if errors.Is(err, redis.Nil) || (err == nil && len(b) == 0) {
		return orders.Order{}, false
	}
	if err != nil {
		c.Log.Warn("order cache get", zap.String("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.Log.Warn("order cache decode", zap.String("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	return o, true
}

// FillOrder caches o unless any entry, tombstones included, is present.
func (c *OrderCache) FillOrder(ctx context.Context, o orders.Order) {
	c.run(ctx, fillOrderScript, "fill", o.ID, o.UpdatedAt, o)
}

// StoreOrder writes a committed order through unless a newer entry exists.
func (c *OrderCache) StoreOrder(ctx context.Context, o orders.Order) {
	c.run(ctx, storeOrderScript, "store", o.ID, o.UpdatedAt, o)
}

// ForgetOrder replaces the entry with a tombstone that lives for the cache TTL.
func (c *OrderCache) ForgetOrder(ctx context.Context, id string, at time.Time) {
	c.run(ctx, storeOrderScript, "forget", id, at, nil)
}

func (c *OrderCache) run(ctx context.Context, script *redis.Script, op, id string, version time.Time, o any) {
	if c == nil || c.Redis == nil {
		return
	}
	body := ""
	if o != nil {
		b, err := json.Marshal(o)
		if err != nil {
			return
		}
		body = string(b)
	}
	err := script.Run(ctx, c.Redis, []string{orderKey(id)}, version.UnixMicro(), body, c.TTL.Milliseconds()).Err()
	if err != nil {
		c.Log.Warn("order cache "+op, zap.String("order_id", id), zap.Error(err))
	}
}

var _ orders.Cache = (*OrderCache)(nil)
