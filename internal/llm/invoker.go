package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds the exponential backoff applied to rate-limit and
// quota failures. Wait before retry i (0-based) is BaseDelay * 2^i plus a
// uniform jitter in [0, MaxJitter).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy is 3 attempts, 2s base, up to 1s jitter.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxJitter:   time.Second,
}

// Backoff returns the deterministic part of the wait after attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// Invoker is the single retry boundary around the backend. Callers never
// retry on their own.
type Invoker struct {
	backend Backend
	policy  RetryPolicy
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(max time.Duration) time.Duration
}

type Option func(*Invoker)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(inv *Invoker) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		inv.policy = p
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(inv *Invoker) {
		if l != nil {
			inv.logger = l
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(inv *Invoker) { inv.sleep = fn }
}

// WithJitter replaces the jitter source, mainly for tests.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(inv *Invoker) { inv.jitter = fn }
}

func NewInvoker(backend Backend, opts ...Option) *Invoker {
	inv := &Invoker{
		backend: backend,
		policy:  DefaultRetryPolicy,
		logger:  zap.NewNop(),
		sleep:   sleepContext,
		jitter:  randomJitter,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (inv *Invoker) Backend() Backend { return inv.backend }

func (inv *Invoker) Policy() RetryPolicy { return inv.policy }

// Do runs op, retrying only while it fails with a retryable kind. A
// non-retryable error is returned unchanged on first sight; after the last
// attempt the last error is returned unchanged.
func Do[T any](ctx context.Context, inv *Invoker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < inv.policy.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		kind := Classify(err)
		if !kind.Retryable() {
			return zero, err
		}
		if attempt == inv.policy.MaxAttempts-1 {
			break
		}

		wait := inv.policy.Backoff(attempt) + inv.jitter(inv.policy.MaxJitter)
		inv.logger.Warn("rate limit hit, retrying",
			zap.Stringer("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", inv.policy.MaxAttempts),
			zap.Duration("wait", wait),
		)
		if err := inv.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt+1, err)
		}
	}

	inv.logger.Warn("retries exhausted", zap.Int("attempts", inv.policy.MaxAttempts), zap.Error(lastErr))
	return zero, lastErr
}

// Text sends req and returns the fence-stripped text response.
func (inv *Invoker) Text(ctx context.Context, req Request) (string, error) {
	return Do(ctx, inv, func(ctx context.Context) (string, error) {
		raw, err := inv.backend.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		return CleanText(raw), nil
	})
}

// JSON sends req and decodes the response into out, validating it against
// req.Shape when set.
func (inv *Invoker) JSON(ctx context.Context, req Request, out any) error {
	_, err := Do(ctx, inv, func(ctx context.Context) (struct{}, error) {
		raw, err := inv.backend.Generate(ctx, req)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, Decode(raw, req.Shape, out)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
