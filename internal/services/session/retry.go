package session

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/models"
)

// RetryPolicy defines launch retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates a default launch retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry reports whether a failed launch is worth another attempt.
// attempt is 0-based.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt+1 >= p.MaxAttempts {
		return false
	}
	// configuration problems fail the same way every time
	if errors.Is(err, models.ErrUnsupportedEngine) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// Execute runs fn until it succeeds, the error is not retryable, or attempts run out.
// It returns the number of attempts made.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func(attempt int) error) (int, error) {
	var lastErr error
	maxAttempts := max(p.MaxAttempts, 1)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt + 1, nil
		}

		if !p.ShouldRetry(attempt, lastErr) {
			if attempt+1 < maxAttempts {
				logger.Debug().
					Int("attempt", attempt+1).
					Err(lastErr).
					Msg("Non-retryable launch error, failing immediately")
			}
			return attempt + 1, lastErr
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Debug().
			Int("attempt", attempt+1).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying launch after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn().
		Int("max_attempts", maxAttempts).
		Err(lastErr).
		Msg("All launch attempts exhausted")

	return maxAttempts, lastErr
}
