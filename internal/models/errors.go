// -----------------------------------------------------------------------
// Error taxonomy - typed errors shared by drivers, waits, elements and sessions
// -----------------------------------------------------------------------

package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("no matching element")
	ErrStaleReference         = errors.New("stale element reference")
	ErrTimeout                = errors.New("wait timed out")
	ErrSessionInit            = errors.New("session initialisation failed")
	ErrUnrecoverableReference = errors.New("unrecoverable element reference")
	ErrInvalidLocator         = errors.New("invalid locator")
	ErrUnsupportedEngine      = errors.New("unsupported engine")
	ErrScript                 = errors.New("script error")
	ErrDisconnected           = errors.New("session disconnected")
	ErrNotInteractable        = errors.New("element not interactable")
)

// ErrorKind classifies an error so callers can branch on it without
// inspecting driver-specific error types
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindStale
	KindTimeout
	KindSessionInit
	KindUnrecoverable
	KindScript
	KindDisconnected
	KindNotInteractable
	KindInvalidLocator
	KindCanceled
	KindOther
)

var kindNames = map[ErrorKind]string{
	KindNone:            "none",
	KindNotFound:        "not_found",
	KindStale:           "stale_reference",
	KindTimeout:         "timeout",
	KindSessionInit:     "session_init",
	KindUnrecoverable:   "unrecoverable_reference",
	KindScript:          "script",
	KindDisconnected:    "disconnected",
	KindNotInteractable: "not_interactable",
	KindInvalidLocator:  "invalid_locator",
	KindCanceled:        "canceled",
	KindOther:           "other",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindStale:
		return ErrStaleReference
	case KindTimeout:
		return ErrTimeout
	case KindSessionInit:
		return ErrSessionInit
	case KindUnrecoverable:
		return ErrUnrecoverableReference
	case KindScript:
		return ErrScript
	case KindDisconnected:
		return ErrDisconnected
	case KindNotInteractable:
		return ErrNotInteractable
	case KindInvalidLocator:
		return ErrInvalidLocator
	}
	return nil
}

// DriverError is the typed failure every driver call reports
type DriverError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewDriverError wraps err with a kind and the failing operation name
func NewDriverError(kind ErrorKind, op string, err error) *DriverError {
	return &DriverError{Kind: kind, Op: op, Err: err}
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

func (e *DriverError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// TimeoutError reports a wait whose deadline elapsed before its condition held
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	Elapsed   time.Duration
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (timeout %s)", e.Elapsed.Round(time.Millisecond), e.Condition, e.Timeout)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// SessionInitError reports a failed session creation or replacement
type SessionInitError struct {
	Worker   WorkerID
	Engine   EngineKind
	Attempts int
	Err      error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session init failed for worker %s (engine %s, attempts %d): %v", e.Worker, e.Engine, e.Attempts, e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

func (e *SessionInitError) Is(target error) bool {
	return target == ErrSessionInit
}

// UnrecoverableReferenceError reports a stale reference that cannot be re-bound,
// either because the handle has no locator or because re-resolution failed
type UnrecoverableReferenceError struct {
	Element string
	Err     error
}

func (e *UnrecoverableReferenceError) Error() string {
	return fmt.Sprintf("element %s cannot be re-resolved: %v", e.Element, e.Err)
}

func (e *UnrecoverableReferenceError) Unwrap() error {
	return e.Err
}

func (e *UnrecoverableReferenceError) Is(target error) bool {
	return target == ErrUnrecoverableReference
}

// KindOf classifies err. Wrapper types are checked before the errors they wrap,
// so a TimeoutError whose last error was a miss is still a timeout.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var unrecoverable *UnrecoverableReferenceError
	if errors.As(err, &unrecoverable) {
		return KindUnrecoverable
	}
	var sessionErr *SessionInitError
	if errors.As(err, &sessionErr) {
		return KindSessionInit
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTimeout
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		return driverErr.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStaleReference):
		return KindStale
	case errors.Is(err, ErrInvalidLocator):
		return KindInvalidLocator
	case errors.Is(err, ErrScript):
		return KindScript
	case errors.Is(err, ErrDisconnected):
		return KindDisconnected
	case errors.Is(err, ErrNotInteractable):
		return KindNotInteractable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindOther
}

// IsStale reports whether err is a stale-reference failure
func IsStale(err error) bool {
	return KindOf(err) == KindStale
}

// IsNotFound reports whether err is a no-match failure
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
