package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Recoverable is implemented by errors that know whether a retry can help.
type Recoverable interface {
	Recoverable() bool
}

// RetryPolicy runs an operation until it succeeds, a fatal error is returned, the attempts
// run out or the context ends.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Backoff      time.Duration
	// Classify reports whether err is worth retrying. nil treats every error as recoverable
	// unless it implements Recoverable.
	Classify func(err error) bool
}

// ProtectionRetryPolicy is used to attach stop and target right after an entry fill, when
// the position may not be visible yet.
func ProtectionRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		Backoff:      time.Second,
	}
}

// ErrRetriesExhausted wraps the last error after the final attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

func (p RetryPolicy) recoverable(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	var r Recoverable
	if errors.As(err, &r) {
		return r.Recoverable()
	}
	return true
}

// Do runs op and returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	if err := sleepCtx(ctx, p.InitialDelay); err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !p.recoverable(lastErr) {
			return attempt, lastErr
		}
		if attempt < attempts {
			if err := sleepCtx(ctx, p.Backoff); err != nil {
				return attempt, err
			}
		}
	}
	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
