package httpx

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// RetryPolicy is retry behavior as plain data, so call sites stay free of
// hidden control flow and the loop is testable on its own.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterFrac  float64
}

// DefaultPolicy is a sane bounded-backoff default for catalog APIs.
var DefaultPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    15 * time.Second,
	JitterFrac:  0.25,
}

// Attempt is one try of an external call. Returning status lets the loop
// classify HTTP failures without parsing error strings.
type Attempt func(ctx context.Context) (status int, err error)

// Retryable reports whether a failed attempt may be tried again: timeouts,
// transport errors, 408, 429 and 5xx. Authentication rejections are never
// retried; they surface as AuthError immediately.
func Retryable(status int, err error) bool {
	var schemaErr *models.SchemaError
	if errors.As(err, &schemaErr) {
		return false
	}
	if status == 0 {
		// Transport-level failure, no response.
		return true
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}

// Backoff computes the delay before attempt n (1-based), exponential with
// jitter, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if p.JitterFrac > 0 {
		d += d * p.JitterFrac * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs op under the policy. 401/403 escalate to AuthError on the spot.
// After the attempt budget is spent the last failure is wrapped in
// ExternalAPIError carrying the attempt count for audit.
func Do(ctx context.Context, api string, policy RetryPolicy, op Attempt) error {
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		status, err := op(ctx)
		if err == nil {
			return nil
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &models.AuthError{API: api, Status: status}
		}
		if !Retryable(status, err) {
			return err
		}

		lastErr, lastStatus = err, status
		if attempt == policy.MaxAttempts {
			break
		}

		util.ExternalRequestRetries.WithLabelValues(api).Inc()
		select {
		case <-time.After(policy.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &models.ExternalAPIError{
		API:      api,
		Status:   lastStatus,
		Attempts: policy.MaxAttempts,
		Err:      lastErr,
	}
}
