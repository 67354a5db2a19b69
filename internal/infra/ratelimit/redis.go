package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zkrent/internal/domain"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "zkrent:rl:"

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

type RedisLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisLimiter(client redis.Scripter, now func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, size time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := size.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	raw, err := allowScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, windowMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script: %w", err)
	}
	current, ttlMillis, err := parseScriptResult(raw)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func parseScriptResult(raw any) (int64, int64, error) {
	values, ok := raw.([]any)
	if !ok || len(values) < 2 {
		return 0, 0, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, errors.New("invalid redis counter response")
	}
	ttl, _ := values[1].(int64)
	return current, ttl, nil
}
