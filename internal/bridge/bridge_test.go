package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Inline(t *testing.T) {
	ctx := context.Background()
	require.False(t, Active(ctx))

	got, err := Run(ctx, time.Second, func(ctx context.Context) (string, error) {
		assert.True(t, Active(ctx), "task should run inside the call graph")
		assert.False(t, OnWorker(ctx), "inline task must not be handed off")
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return "newtok99", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "newtok99", got)
}

func TestRun_HandOffWhenActive(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(WithScheduler(context.Background()), key{}, "kept")

	got, err := Run(ctx, time.Second, func(ctx context.Context) (string, error) {
		assert.True(t, OnWorker(ctx))
		assert.Equal(t, "kept", ctx.Value(key{}))
		return "newtok99", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "newtok99", got)
}

func TestRun_HandOffTimeout(t *testing.T) {
	ctx := WithScheduler(context.Background())
	workerDone := make(chan error, 1)

	_, err := Run(ctx, 50*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		workerDone <- ctx.Err()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)

	select {
	case werr := <-workerDone:
		assert.Error(t, werr, "worker context should be cancelled")
	case <-time.After(time.Second):
		t.Fatal("worker was not cancelled")
	}
}

func TestRun_HandOffCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(WithScheduler(context.Background()))
	started := make(chan struct{})

	go func() {
		<-started
		cancel()
	}()

	_, err := Run(ctx, 5*time.Second, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_HandOffPropagatesError(t *testing.T) {
	sentinel := errors.New("login failed")
	_, err := Run(WithScheduler(context.Background()), time.Second, func(context.Context) (string, error) {
		return "", sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestRun_HandOffRecoversPanic(t *testing.T) {
	_, err := Run(WithScheduler(context.Background()), time.Second, func(context.Context) (string, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
