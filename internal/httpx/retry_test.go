package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/models"
)

var fastPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    5 * time.Millisecond,
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "source", fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return http.StatusOK, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "source", fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return http.StatusServiceUnavailable, fmt.Errorf("upstream unavailable")
		}
		return http.StatusOK, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudgetIntoExternalAPIError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "target", fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return http.StatusInternalServerError, fmt.Errorf("boom")
	})

	require.Error(t, err)
	assert.Equal(t, fastPolicy.MaxAttempts, calls)

	var apiErr *models.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "target", apiErr.API)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, fastPolicy.MaxAttempts, apiErr.Attempts)
}

func TestDoEscalatesAuthRejectionImmediately(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		calls := 0
		err := Do(context.Background(), "source", fastPolicy, func(ctx context.Context) (int, error) {
			calls++
			return status, fmt.Errorf("rejected")
		})

		var authErr *models.AuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, status, authErr.Status)
		assert.Equal(t, 1, calls, "auth rejection must not be retried")
	}
}

func TestDoPassesThroughNonRetryableErrors(t *testing.T) {
	calls := 0
	wantErr := fmt.Errorf("bad request")
	err := Do(context.Background(), "source", fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return http.StatusBadRequest, wantErr
	})

	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, calls)
}

func TestDoDoesNotRetrySchemaErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "source", fastPolicy, func(ctx context.Context) (int, error) {
		calls++
		return http.StatusOK, &models.SchemaError{API: "source", Detail: "not json"}
	})

	var schemaErr *models.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, "source", RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return http.StatusBadGateway, fmt.Errorf("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	transportErr := fmt.Errorf("connection reset")

	assert.True(t, Retryable(0, transportErr))
	assert.True(t, Retryable(http.StatusRequestTimeout, transportErr))
	assert.True(t, Retryable(http.StatusTooManyRequests, transportErr))
	assert.True(t, Retryable(http.StatusInternalServerError, transportErr))
	assert.True(t, Retryable(http.StatusBadGateway, transportErr))

	assert.False(t, Retryable(http.StatusBadRequest, transportErr))
	assert.False(t, Retryable(http.StatusNotFound, transportErr))
	assert.False(t, Retryable(http.StatusOK, &models.SchemaError{API: "source", Detail: "x"}))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(9))
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFrac: 0.25}

	for i := 0; i < 100; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
