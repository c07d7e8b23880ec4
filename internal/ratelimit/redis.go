package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow counts a hit in a hash {count, start}. The expiry is set only
// when the window opens, so later hits never extend it.
var incrWindow = redis.NewScript(`
local c = redis.call("HINCRBY", KEYS[1], "count", 1)
if c == 1 then
  redis.call("HSET", KEYS[1], "start", ARGV[1])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {c, tonumber(redis.call("HGET", KEYS[1], "start"))}
`)

// decrWindow refunds a hit only while the same window is current.
var decrWindow = redis.NewScript(`
if redis.call("HGET", KEYS[1], "start") == ARGV[1] then
  local c = tonumber(redis.call("HGET", KEYS[1], "count"))
  if c and c > 0 then
    return redis.call("HINCRBY", KEYS[1], "count", -1)
  end
end
return 0
`)

// RedisCounter shares counters between instances. Key expiry closes the
// window.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client, prefix: "ratelimit:"}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, now time.Time, ttl time.Duration) (int, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	vals, err := incrWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected rate limit reply %v", vals)
	}
	return int(vals[0]), time.UnixMilli(vals[1]).UTC(), nil
}

func (r *RedisCounter) Decr(ctx context.Context, key string, windowStart time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return decrWindow.Run(ctx, r.client, []string{r.prefix + key},
		strconv.FormatInt(windowStart.UnixMilli(), 10),
	).Err()
}
