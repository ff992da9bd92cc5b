package personaquiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ExecutorOptions is the timeout and retry policy applied to every call
type ExecutorOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultExecutorOptions returns 50s per attempt, 5 attempts, 2s apart
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		Timeout:     CallTimeout,
		MaxAttempts: MaxAttempts,
		Backoff:     RetryBackoff,
	}
}

// Executor runs API calls under a timeout and bounded-retry policy and falls
// back to a caller-supplied value when they keep failing. It holds no
// per-call state and is safe for concurrent use.
type Executor struct {
	opts   ExecutorOptions
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given policy
func NewExecutor(opts ExecutorOptions, logger *zap.Logger) *Executor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = CallTimeout
	}
	return &Executor{
		opts:   opts,
		logger: orNop(logger),
		sleep:  sleepContext,
	}
}

// Options returns the executor's policy
func (e *Executor) Options() ExecutorOptions {
	return e.opts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run invokes call until it succeeds, it fails with an authentication or
// configuration error, or the attempts are used up. It never returns an
// error: on failure the fallback is returned instead.
//
// A timed-out attempt is abandoned, not stopped. When call ignores its
// context, it can still be running while the next attempt starts.
func Run[T any](ctx context.Context, e *Executor, label string, call func(context.Context) (T, error), fallback T) T {
	var lastErr error
	attempts := 0

	for attempts < e.opts.MaxAttempts {
		attempts++
		result, err := attempt(ctx, e.opts.Timeout, call)
		executorAttempts.WithLabelValues(label, errorKind(err)).Inc()
		if err == nil {
			if attempts > 1 {
				e.logger.Info("call succeeded after retry", zap.String("call", label), zap.Int("attempt", attempts))
			}
			return result
		}
		lastErr = err

		if IsAuthFailure(err) || IsConfigurationError(err) || ctx.Err() != nil {
			break
		}

		e.logger.Debug("call attempt failed",
			zap.String("call", label),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", e.opts.MaxAttempts),
			zap.Error(err))

		if attempts < e.opts.MaxAttempts {
			if err := e.sleep(ctx, e.opts.Backoff); err != nil {
				lastErr = err
				break
			}
		}
	}

	kind := errorKind(lastErr)
	executorFallbacks.WithLabelValues(label, kind).Inc()
	switch {
	case IsAuthFailure(lastErr):
		e.logger.Error("model endpoint rejected the credential; check the API key deployment, using fallback",
			zap.String("call", label), zap.Error(lastErr))
	case IsConfigurationError(lastErr):
		e.logger.Debug("model endpoint not configured, using fallback", zap.String("call", label))
	case ctx.Err() != nil:
		e.logger.Debug("call abandoned, using fallback", zap.String("call", label), zap.Error(ctx.Err()))
	default:
		e.logger.Warn("call failed, using fallback",
			zap.String("call", label),
			zap.Int("attempts", attempts),
			zap.String("kind", kind),
			zap.Error(lastErr))
	}
	return fallback
}

type outcome[T any] struct {
	value T
	err   error
}

// attempt runs call once with its own deadline. The deadline holds even when
// call ignores its context.
func attempt[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("call panicked: %v", r)}
			}
		}()
		v, err := call(actx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{After: timeout.String()}
		}
		return o.value, o.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{After: timeout.String()}
	}
}
