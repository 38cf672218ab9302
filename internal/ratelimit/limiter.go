package ratelimit

import (
	"context"
	"time"
)

// Limiter gates sends against per-provider quota windows.
//
// TryConsume is non-blocking: a false return means the window is exhausted and
// the caller decides whether to fail, wait, or fall back to another provider.
type Limiter interface {
	TryConsume(ctx context.Context, provider string) (bool, error)
	Remaining(ctx context.Context, provider string) (int64, error)
}

// Quota describes one provider's allowance: Limit sends per Window.
type Quota struct {
	Limit  int64
	Window time.Duration
}

// Unlimited is returned by Remaining for providers without a configured quota.
const Unlimited int64 = -1
