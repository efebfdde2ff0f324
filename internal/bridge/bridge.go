// Package bridge runs an asynchronous sub-task from code that may itself be
// running inside an asynchronous call graph, such as a live browser session.
//
// A context marked with WithScheduler is considered to be inside such a graph.
// Run executes the task inline when the caller is not, and otherwise hands it
// to an isolated worker goroutine and waits for it with a fixed upper bound.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the worker does not finish within the bound.
var ErrTimeout = errors.New("bridge: timed out waiting for task")

type schedulerKey struct{}

type workerKey struct{}

// WithScheduler marks ctx as running inside the asynchronous call graph.
func WithScheduler(ctx context.Context) context.Context {
	return context.WithValue(ctx, schedulerKey{}, true)
}

// Active reports whether ctx is inside the asynchronous call graph.
func Active(ctx context.Context) bool {
	v, _ := ctx.Value(schedulerKey{}).(bool)
	return v
}

// OnWorker reports whether ctx belongs to a task handed off to a worker.
func OnWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

// Run executes fn bounded by timeout.
//
// Inline: fn runs on the calling goroutine with ctx limited to timeout.
// Hand-off: when ctx is already inside the call graph, fn runs on a new
// goroutine with its own context that keeps ctx's values but not its
// cancellation. The caller blocks for at most timeout and gets ErrTimeout if
// the worker has not finished; the worker's context is then cancelled.
func Run[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if !Active(ctx) {
		runCtx, cancel := context.WithTimeout(WithScheduler(ctx), timeout)
		defer cancel()
		return fn(runCtx)
	}

	return handOff(ctx, timeout, fn)
}

type result[T any] struct {
	value T
	err   error
}

func handOff[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	workerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	workerCtx = context.WithValue(workerCtx, workerKey{}, true)

	done := make(chan result[T], 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result[T]{value: zero, err: fmt.Errorf("bridge: task panicked: %v", r)}
			}
		}()
		v, err := fn(workerCtx)
		done <- result[T]{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		cancel()
		return zero, ErrTimeout
	case <-ctx.Done():
		cancel()
		return zero, ctx.Err()
	}
}
