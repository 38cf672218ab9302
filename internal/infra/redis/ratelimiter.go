package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
)

// consumeScript increments the window counter and rolls back when the limit is
// already spent, so check-and-increment stays a single atomic step even across
// processes sharing one Redis.
var consumeScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call("DECR", KEYS[1])
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*QuotaLimiter)(nil)

// QuotaLimiter is a distributed per-provider quota limiter backed by Redis,
// using fixed windows bucketed by wall clock.
type QuotaLimiter struct {
	client *goredis.Client
	quotas map[string]ratelimit.Quota
	now    func() time.Time
	script *goredis.Script
}

func NewQuotaLimiter(client *goredis.Client, quotas map[string]ratelimit.Quota) (*QuotaLimiter, error) {
	return newQuotaLimiter(client, quotas, time.Now)
}

func newQuotaLimiter(
	client *goredis.Client,
	quotas map[string]ratelimit.Quota,
	nowFn func() time.Time,
) (*QuotaLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	normalized := make(map[string]ratelimit.Quota, len(quotas))
	for name, quota := range quotas {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" {
			return nil, fmt.Errorf("quota provider name is required")
		}
		if quota.Limit <= 0 {
			return nil, fmt.Errorf("quota limit for %q must be positive (got %d)", trimmed, quota.Limit)
		}
		if quota.Window < time.Second {
			return nil, fmt.Errorf("quota window for %q must be at least one second (got %s)", trimmed, quota.Window)
		}
		normalized[trimmed] = quota
	}

	return &QuotaLimiter{
		client: client,
		quotas: normalized,
		now:    nowFn,
		script: consumeScript,
	}, nil
}

func (l *QuotaLimiter) TryConsume(ctx context.Context, provider string) (bool, error) {
	if l == nil || l.client == nil || l.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		return false, fmt.Errorf("provider is required")
	}

	quota, ok := l.quotas[name]
	if !ok {
		return true, nil
	}

	windowSeconds := int64(quota.Window / time.Second)
	key := l.windowKey(name, windowSeconds)

	result, err := l.script.Run(ctx, l.client, []string{key}, quota.Limit, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate quota: %w", err)
	}

	return result == 1, nil
}

func (l *QuotaLimiter) Remaining(ctx context.Context, provider string) (int64, error) {
	if l == nil || l.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	name := strings.ToLower(strings.TrimSpace(provider))
	quota, ok := l.quotas[name]
	if !ok {
		return ratelimit.Unlimited, nil
	}

	windowSeconds := int64(quota.Window / time.Second)
	key := l.windowKey(name, windowSeconds)

	consumed, err := l.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return quota.Limit, nil
		}
		return 0, fmt.Errorf("failed to read quota counter: %w", err)
	}

	remaining := quota.Limit - consumed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *QuotaLimiter) windowKey(provider string, windowSeconds int64) string {
	bucket := l.now().UTC().Unix() / windowSeconds
	return fmt.Sprintf("quota:%s:%d", provider, bucket)
}
