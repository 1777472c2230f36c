package cancel

import (
	"context"
	"errors"
	"fmt"
)

// ErrCanceled is returned when the caller's context is canceled before the
// raced operation settles.
var ErrCanceled = errors.New("operation canceled")

var afterFunc = context.AfterFunc

type outcome[T any] struct {
	value T
	err   error
}

// Race runs fn and returns its outcome, or ErrCanceled if ctx is canceled
// first. fn is not interrupted and keeps running after a cancellation.
func Race[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, canceled(err)
	}

	canceledCh := make(chan struct{})
	stop := afterFunc(ctx, func() { close(canceledCh) })
	defer stop()

	done := make(chan outcome[T], 1)
	go func() {
		value, err := fn()
		done <- outcome[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil && !errors.Is(res.err, ErrCanceled) {
			return zero, canceled(ctx.Err())
		}
		return res.value, res.err
	case <-canceledCh:
		return zero, canceled(ctx.Err())
	}
}

// IsCanceled reports whether err came from a canceled operation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func canceled(cause error) error {
	if cause == nil {
		return ErrCanceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
