// Package startup — подключение к внешним зависимостям при старте процесса с повторами.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolmsg/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// withRetry вызывает connect, пока он не вернёт nil или не истечёт maxWait.
// Пауза между попытками удваивается до maxBackoff.
func withRetry[T any](ctx context.Context, what string, maxWait, backoff time.Duration, connect func(context.Context) (T, error)) (T, error) {
	deadline := time.Now().Add(maxWait)
	for {
		v, err := connect(ctx)
		if err == nil {
			return v, nil
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
