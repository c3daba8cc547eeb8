package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetryWithBackoffRetriesTransientErrors(t *testing.T) {
	calls := 0
	attempts, err := RetryWithBackoff(context.Background(), "fetch", fastPolicy(4), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewSourceUnavailableError("yahoo", 503, nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	attempts, err := RetryWithBackoff(context.Background(), "fetch", fastPolicy(5), func(ctx context.Context) error {
		calls++
		return NewValidationError("symbol", "empty")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "symbol", ve.Field)
}

func TestRetryWithBackoffExhaustsBudget(t *testing.T) {
	attempts, err := RetryWithBackoff(context.Background(), "fetch", fastPolicy(3), func(ctx context.Context) error {
		return NewRateLimitedError("newsapi", 2*time.Millisecond)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 2*time.Millisecond, rl.RetryAfter)
}

func TestRetryWithBackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := RetryWithBackoff(ctx, "fetch", policy, func(ctx context.Context) error {
			return NewSourceUnavailableError("sec", 502, nil)
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, BackoffDelay(p, 0))
	assert.Equal(t, 200*time.Millisecond, BackoffDelay(p, 1))
	assert.Equal(t, 800*time.Millisecond, BackoffDelay(p, 3))
	assert.Equal(t, time.Second, BackoffDelay(p, 4))
	assert.Equal(t, time.Second, BackoffDelay(p, 40))
}

func TestErrorKindsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("cycle: %w", NewSourceUnavailableError("yahoo", 0, cause))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)

	assert.False(t, IsRetryable(NewDatabaseError("insert", cause)))
	assert.ErrorIs(t, fmt.Errorf("lookup: %w", ErrNotFound), ErrNotFound)
}

func TestErrorHandlerCounts(t *testing.T) {
	h := NewErrorHandler(nil)
	assert.False(t, h.Handle(nil, "noop"))
	assert.True(t, h.Handle(NewModelUnavailableError("no model", nil), "score"))
	assert.True(t, h.Handle(errors.New("boom"), "score"))
	assert.Equal(t, int64(2), h.ErrorCount())
	h.ResetErrorCount()
	assert.Equal(t, int64(0), h.ErrorCount())
}
