package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "shrinkit:ratelimit"

// Limiter decides whether subject may spend one token now.
type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisTokenBucket shares one bucket per subject across every API replica.
// The refill and spend happen atomically in a Lua script.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

// tokenBucketScript refills the bucket for the time elapsed since the last
// call, then tries to spend ARGV[4] tokens. It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - last) * rate)

local allowed, wait = 0, 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {allowed, math.floor(tokens), wait}
`)

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = DefaultKeyPrefix
	}

	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(windowMS),
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return l.AllowN(ctx, subject, 1)
}

// AllowN spends cost tokens at once, e.g. more for a processing request
// than for a status read.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	if cost < 1 {
		cost = 1
	}
	if int64(cost) > l.capacity {
		return Decision{}, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, l.capacity)
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	key := l.keyPrefix + ":" + subject
	res, err := tokenBucketScript.Run(ctx, l.client, []string{key},
		l.capacity,
		l.refillPerMS,
		l.now().UnixMilli(),
		cost,
		l.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket returned %d values", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
