package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] idempotency key; ARGV stale order id, new order id, ttl ms
var replaceIdemScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Idempotency maps a client supplied Idempotency-Key to the order it
// created. It is a fast path for retried requests, not a lock: two racing
// first attempts can both reach the engine.
type Idempotency struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{Redis: rdb, TTL: TTLIdempotency}
}

func idemKey(userID, key string) string { return fmt.Sprintf(KeyIdemOrderCreate, userID, key) }

// Lookup returns the order id recorded for (userID, key).
func (i *Idempotency) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	if i == nil || i.Redis == nil || key == "" {
		return "", false, nil
	}
	id, err := i.Redis.Get(ctx, idemKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Remember records orderID for (userID, key) unless another request got there first.
func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	if i == nil || i.Redis == nil || key == "" {
		return nil
	}
	_, err := SetOnce(ctx, i.Redis, idemKey(userID, key), orderID, i.TTL)
	return err
}

// Replace points (userID, key) at orderID if it still names staleID, the
// order a previous attempt created and that has since been deleted. It
// reports whether the key was moved.
func (i *Idempotency) Replace(ctx context.Context, userID, key, staleID, orderID string) (bool, error) {
	if i == nil || i.Redis == nil || key == "" {
		return false, nil
	}
	n, err := replaceIdemScript.Run(ctx, i.Redis, []string{idemKey(userID, key)}, staleID, orderID, i.TTL.Milliseconds()).Int()
	return n == 1, err
}
