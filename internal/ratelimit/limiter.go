package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// Budget is the request budget for one external API: at most Requests calls
// inside any rolling Window.
type Budget struct {
	Requests int
	Window   time.Duration
	MaxWait  time.Duration
}

// Limiter is shared admission control across all workers of a run. One token
// bucket per registered API name; acquisition blocks cooperatively until the
// budget allows one more call or the per-API wait ceiling is hit.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	budgets  map[string]Budget
}

func New() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		budgets:  make(map[string]Budget),
	}
}

// Register configures the budget for an API. Re-registering replaces the
// bucket, so in-flight waiters keep the old budget.
func (l *Limiter) Register(api string, b Budget) {
	limit := rate.Limit(float64(b.Requests) / b.Window.Seconds())
	l.mu.Lock()
	defer l.mu.Unlock()
	// Burst of one paces grants evenly, so no rolling window admits more
	// than Requests calls. A larger burst admits burst plus a full window
	// of refill inside one window.
	l.limiters[api] = rate.NewLimiter(limit, 1)
	l.budgets[api] = b
}

func (l *Limiter) get(api string) (*rate.Limiter, Budget, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lim, ok := l.limiters[api]
	return lim, l.budgets[api], ok
}

// Acquire blocks until the API's budget allows one more call. Waits longer
// than the configured ceiling fail with RateLimitTimeoutError instead of
// blocking indefinitely. Safe for many concurrent callers.
func (l *Limiter) Acquire(ctx context.Context, api string) error {
	lim, budget, ok := l.get(api)
	if !ok {
		// Unregistered APIs are not throttled.
		return nil
	}

	waitCtx := ctx
	if budget.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, budget.MaxWait)
		defer cancel()
	}

	start := time.Now()
	err := lim.Wait(waitCtx)
	waited := time.Since(start)
	util.RateLimitWaitSeconds.WithLabelValues(api).Observe(waited.Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &models.RateLimitTimeoutError{API: api, Waited: waited, MaxWait: budget.MaxWait}
	}
	return nil
}
