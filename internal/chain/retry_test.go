package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	result, err := Retry(context.Background(), func() (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), func() (int, error) {
		calls++
		return 0, mkterr.ErrSubmissionRejected
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrSubmissionRejected)
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")
}

func TestRetryWithConfig_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	result, err := RetryWithConfig(context.Background(), cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", WrapRetryable(errors.New("connection refused"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	_, err := RetryWithConfig(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, WrapRetryable(errors.New("still down"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryWithConfig_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := RetryWithConfig(ctx, cfg, func() (int, error) {
		calls++
		return 0, WrapRetryable(errors.New("down"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 3)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(mkterr.ErrExecutionReverted))
	assert.True(t, IsRetryable(WrapRetryable(errors.New("x"))))
	assert.True(t, IsRetryable(mkterr.ErrNodeUnavailable))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
}

func TestWrapRetryable_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, WrapRetryable(nil))
}
