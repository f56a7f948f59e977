// Package deadline bounds calls to external systems with a client-side timeout.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("operation timed out")

// TimeoutError reports which operation exceeded its budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Hint    string
}

func (e *TimeoutError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s timed out after %s: %s", e.Op, e.Timeout, e.Hint)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Run calls fn with a context bounded by d and returns as soon as either fn
// finishes or the deadline passes. fn keeps running in the background after a
// timeout until it observes its context; its late result is discarded.
// A non-positive d disables the bound.
func Run[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer cancel()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var zero T
			return zero, &TimeoutError{Op: op, Timeout: d}
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{Op: op, Timeout: d}
		}
		return zero, ctx.Err()
	}
}

// WithHint attaches a user-facing hint to err when it is a timeout.
func WithHint(err error, hint string) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		cp := *te
		cp.Hint = hint
		return &cp
	}
	return err
}
