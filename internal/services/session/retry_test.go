package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/models"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy()

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"nil error", 0, nil, false},
		{"transient", 0, errors.New("devtools not ready"), true},
		{"timeout", 1, context.DeadlineExceeded, true},
		{"last attempt", 2, errors.New("devtools not ready"), false},
		{"unsupported engine", 0, fmt.Errorf("%w: ie", models.ErrUnsupportedEngine), false},
		{"canceled", 0, context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.err))
		})
	}
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	p := NewRetryPolicy()

	for attempt := 0; attempt < 10; attempt++ {
		b := p.CalculateBackoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, p.MaxBackoff+p.MaxBackoff/4)
	}

	first := p.CalculateBackoff(0)
	assert.InDelta(t, float64(p.InitialBackoff), float64(first), float64(p.InitialBackoff)/4+1)
}

func TestRetryPolicy_Execute(t *testing.T) {
	p := fastRetry(3)
	calls := 0

	attempts, err := p.Execute(context.Background(), arbor.NewLogger(), func(attempt int) error {
		calls++
		if attempt < 1 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_ExecuteStopsOnCancel(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiplier: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	attempts, err := p.Execute(ctx, arbor.NewLogger(), func(int) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
