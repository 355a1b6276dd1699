package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	v, err := withRetry(context.Background(), "test", time.Second, time.Millisecond, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("refused")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryGivesUp(t *testing.T) {
	cause := errors.New("refused")
	_, err := withRetry(context.Background(), "test", 0, time.Millisecond, func(context.Context) (int, error) {
		return 0, cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := withRetry(ctx, "test", time.Minute, time.Hour, func(context.Context) (int, error) {
		return 0, errors.New("refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
