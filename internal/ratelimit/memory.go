package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryLimiter tracks quota windows in process memory. Each provider owns an
// independent window with its own lock, so concurrent dispatches against
// unrelated providers never contend; the check-and-increment for one provider
// is a single critical section, which keeps consumed from ever exceeding the
// limit under concurrent callers.
type MemoryLimiter struct {
	windows map[string]*quotaWindow
	now     func() time.Time
}

type quotaWindow struct {
	mu       sync.Mutex
	limit    int64
	window   time.Duration
	consumed int64
	resetAt  time.Time
}

func NewMemoryLimiter(quotas map[string]Quota) (*MemoryLimiter, error) {
	return newMemoryLimiter(quotas, time.Now)
}

func newMemoryLimiter(quotas map[string]Quota, nowFn func() time.Time) (*MemoryLimiter, error) {
	if nowFn == nil {
		nowFn = time.Now
	}

	windows := make(map[string]*quotaWindow, len(quotas))
	for name, quota := range quotas {
		normalized := normalizeProvider(name)
		if normalized == "" {
			return nil, fmt.Errorf("quota provider name is required")
		}
		if quota.Limit <= 0 {
			return nil, fmt.Errorf("quota limit for %q must be positive (got %d)", normalized, quota.Limit)
		}
		if quota.Window <= 0 {
			return nil, fmt.Errorf("quota window for %q must be positive (got %s)", normalized, quota.Window)
		}
		windows[normalized] = &quotaWindow{
			limit:  quota.Limit,
			window: quota.Window,
		}
	}

	return &MemoryLimiter{
		windows: windows,
		now:     nowFn,
	}, nil
}

// TryConsume takes one unit from the provider's current window. Providers
// without a configured quota are not limited.
func (l *MemoryLimiter) TryConsume(ctx context.Context, provider string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w, ok := l.windows[normalizeProvider(provider)]
	if !ok {
		return true, nil
	}

	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollover(now)
	if w.consumed >= w.limit {
		return false, nil
	}
	w.consumed++
	return true, nil
}

// Remaining reports how many sends are left in the provider's current window.
func (l *MemoryLimiter) Remaining(ctx context.Context, provider string) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w, ok := l.windows[normalizeProvider(provider)]
	if !ok {
		return Unlimited, nil
	}

	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollover(now)
	return w.limit - w.consumed, nil
}

// rollover resets an expired window. Callers hold w.mu.
func (w *quotaWindow) rollover(now time.Time) {
	if w.resetAt.IsZero() || !now.Before(w.resetAt) {
		w.consumed = 0
		w.resetAt = now.Add(w.window)
	}
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
