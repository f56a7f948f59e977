package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsResult(t *testing.T) {
	v, err := Run(context.Background(), time.Second, "classify", func(ctx context.Context) (string, error) {
		return "sql", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sql", v)
}

func TestRunPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), time.Second, "generate", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRunTimesOutEvenWhenCallIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Run(context.Background(), 20*time.Millisecond, "summarize", func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "summarize", te.Op)
}

func TestRunMapsContextDeadlineErrorsToTimeout(t *testing.T) {
	_, err := Run(context.Background(), 10*time.Millisecond, "execute", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunParentCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, time.Second, "execute", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWithHint(t *testing.T) {
	err := WithHint(&TimeoutError{Op: "execute", Timeout: time.Second}, "try a simpler query")
	assert.Contains(t, err.Error(), "try a simpler query")

	plain := errors.New("x")
	assert.Same(t, plain, WithHint(plain, "ignored"))
}
