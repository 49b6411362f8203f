package segment

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy controls how often and how patiently a segment is refetched.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per segment, including
	// the first one.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Multiplier grows the delay for every further attempt.
	Multiplier float64

	// MaxDelay caps every delay, jitter included. Zero means no cap.
	MaxDelay time.Duration

	// Jitter is the relative spread applied to each delay, in [0, 1].
	// 0.25 spreads a 1s delay over [750ms, 1250ms].
	Jitter float64
}

// DefaultRetryPolicy returns 3 attempts, 1s then 2s, with ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
	}
}

// Attempts returns MaxAttempts, at least 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based) for a
// uniform sample u in [0, 1). It is deterministic in its inputs.
func (p RetryPolicy) Delay(attempt int, u float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	limit := float64(p.MaxDelay)
	if limit > 0 && d > limit {
		d = limit
	}

	if p.Jitter > 0 {
		u = math.Max(0, math.Min(1, u))
		d *= 1 + math.Min(p.Jitter, 1)*(2*u-1)
	}
	if limit > 0 && d > limit {
		d = limit
	}
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return time.Duration(d)
}

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// retryable reports whether another attempt may succeed. Client errors
// other than 408 and 429 are permanent: signed segment URLs do not heal.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code >= 400 && code < 500 && code != 408 && code != 429 {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
