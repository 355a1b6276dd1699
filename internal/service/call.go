package service

import (
	"context"
	"errors"
	"time"

	"github.com/schoolmsg/internal/apperr"
	"github.com/schoolmsg/internal/metrics"
	"github.com/schoolmsg/internal/storage"
)

const defaultStoreTimeout = 5 * time.Second

// call выполняет один вызов хранилища под собственным таймаутом.
// storage.ErrNotFound отдаётся как есть, истёкший дедлайн становится Unavailable,
// остальное — Internal.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	defer metrics.ObserveStoreCall(op, time.Now())
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(cctx)
	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
		return v, err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		return v, apperr.Unavailable(err)
	default:
		return v, apperr.Internal(err)
	}
}

func exec(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	_, err := call(ctx, timeout, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
