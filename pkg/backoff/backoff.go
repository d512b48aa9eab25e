package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermanentError tells Do to stop retrying and return the wrapped error as is.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Policy describes an exponential backoff ladder: the first retry waits Base,
// each following retry doubles the wait up to Cap, and Do gives up after
// MaxAttempts attempts.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Base:        500 * time.Millisecond,
		Cap:         8 * time.Second,
		MaxAttempts: 5,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is canceled.
// The returned error is the last error from fn, wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.Base
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var permanent *PermanentError
		if errors.As(lastErr, &permanent) {
			return permanent.Err
		}
		if attempt == attempts {
			break
		}
		if SleepInterrupted(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
		if p.Cap > 0 && delay > p.Cap {
			delay = p.Cap
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

// SleepInterrupted waits for d and reports whether ctx was canceled first.
func SleepInterrupted(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
