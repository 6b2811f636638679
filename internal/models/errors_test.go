package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	stale := NewDriverError(KindStale, "click", errors.New("node detached"))
	miss := NewDriverError(KindNotFound, "find", nil)

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"driver stale", stale, KindStale},
		{"wrapped driver stale", fmt.Errorf("clicking #save: %w", stale), KindStale},
		{"driver not found", miss, KindNotFound},
		{"bare sentinel", ErrNotFound, KindNotFound},
		{"timeout wins over last error", &TimeoutError{Condition: "presence", LastErr: miss}, KindTimeout},
		{"unrecoverable wins over timeout", &UnrecoverableReferenceError{Element: "#row", Err: &TimeoutError{}}, KindUnrecoverable},
		{"session init", &SessionInitError{Worker: "w1", Err: errors.New("no browser")}, KindSessionInit},
		{"invalid locator", fmt.Errorf("%w: empty", ErrInvalidLocator), KindInvalidLocator},
		{"context canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	timeoutErr := &TimeoutError{
		Condition: "visibility of css:#banner",
		Timeout:   time.Second,
		Elapsed:   time.Second,
		LastErr:   NewDriverError(KindNotFound, "find", nil),
	}
	assert.ErrorIs(t, timeoutErr, ErrTimeout)
	assert.ErrorIs(t, timeoutErr, ErrNotFound, "last error stays reachable")
	assert.Contains(t, timeoutErr.Error(), "visibility of css:#banner")

	unrecoverable := &UnrecoverableReferenceError{Element: "css:#row", Err: timeoutErr}
	assert.ErrorIs(t, unrecoverable, ErrUnrecoverableReference)
	assert.ErrorIs(t, unrecoverable, ErrTimeout)

	initErr := &SessionInitError{Worker: "w1", Engine: EngineChrome, Attempts: 2, Err: errors.New("exec: not found")}
	assert.ErrorIs(t, initErr, ErrSessionInit)
	assert.Contains(t, initErr.Error(), "w1")

	assert.True(t, IsStale(NewDriverError(KindStale, "text", nil)))
	assert.False(t, IsStale(NewDriverError(KindScript, "eval", nil)))
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", ErrNotFound)))
}
