package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InvokeFunc runs one task callback. The orchestrator supplies one that adds
// retries and a circuit breaker; call performs a single attempt.
type InvokeFunc func(ctx context.Context, task *Task, call func(context.Context) error) error

// DirectInvoke performs exactly one attempt.
func DirectInvoke(ctx context.Context, _ *Task, call func(context.Context) error) error {
	return call(ctx)
}

// callWithTimeout runs fn and waits for it to return. With a positive timeout
// it stops waiting once the timeout elapses and reports timedOut; fn keeps its
// goroutine until it returns, since running work is never interrupted.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (err error, timedOut bool) {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	var expired <-chan time.Time
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- recoverCall(runCtx, fn)
	}()

	select {
	case err = <-done:
	case <-expired:
		return nil, true
	}

	// A callback that honours its context returns DeadlineExceeded instead of
	// outliving the timer; report that as a timeout too.
	if err != nil && timeout > 0 && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, true
	}
	return err, false
}

// recoverCall converts a panic in fn into an error.
func recoverCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
