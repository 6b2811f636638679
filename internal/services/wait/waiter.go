// -----------------------------------------------------------------------
// Condition Waiter - bounded polling of predicates against a session
// -----------------------------------------------------------------------

package wait

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
)

// Predicate reports whether a condition currently holds
type Predicate func(ctx context.Context, d interfaces.Driver) (bool, error)

// DefaultTolerated are the error kinds swallowed while polling
var DefaultTolerated = []models.ErrorKind{models.KindNotFound, models.KindStale}

// Condition is a stateless, reusable wait description.
// Zero Timeout or Interval falls back to the waiter's defaults, nil Tolerate to DefaultTolerated.
type Condition struct {
	Name      string
	Kind      string // low-cardinality label for metrics, e.g. "visibility"
	Predicate Predicate
	Timeout   time.Duration
	Interval  time.Duration
	Tolerate  []models.ErrorKind
}

func (c Condition) WithTimeout(d time.Duration) Condition {
	c.Timeout = d
	return c
}

func (c Condition) WithInterval(d time.Duration) Condition {
	c.Interval = d
	return c
}

func (c Condition) WithTolerate(kinds ...models.ErrorKind) Condition {
	c.Tolerate = kinds
	return c
}

// Options are the waiter-wide defaults
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultOptions returns a 10s timeout polled every 250ms
func DefaultOptions() Options {
	return Options{
		Timeout:  10 * time.Second,
		Interval: 250 * time.Millisecond,
	}
}

// Waiter polls conditions. It holds no per-call state and is safe for concurrent use.
type Waiter struct {
	source  interfaces.SessionSource
	opts    Options
	logger  arbor.ILogger
	metrics *metrics.Metrics
}

// NewWaiter creates a waiter that fetches its driver from source.
// source may be nil when every call goes through AwaitOn.
func NewWaiter(source interfaces.SessionSource, opts Options, logger arbor.ILogger, m *metrics.Metrics) *Waiter {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Waiter{source: source, opts: opts, logger: logger, metrics: m}
}

func (w *Waiter) Options() Options {
	return w.opts
}

// Await evaluates cond against the worker's current session until it holds or times out
func (w *Waiter) Await(ctx context.Context, cond Condition) error {
	d, err := w.driver(ctx)
	if err != nil {
		return err
	}
	return w.AwaitOn(ctx, d, cond)
}

// AwaitOn evaluates cond against d.
//
// The deadline is fixed at call start. Errors of a tolerated kind count as "not yet";
// any other error aborts the wait and is returned unchanged. On timeout the result
// is a *models.TimeoutError carrying the condition name and the last tolerated error.
func (w *Waiter) AwaitOn(ctx context.Context, d interfaces.Driver, cond Condition) error {
	if cond.Predicate == nil {
		return fmt.Errorf("condition %q has no predicate", cond.Name)
	}

	timeout, interval := w.bounds(cond.Timeout, cond.Interval)
	tolerated := cond.Tolerate
	if tolerated == nil {
		tolerated = DefaultTolerated
	}
	kind := cond.Kind
	if kind == "" {
		kind = "custom"
	}

	start := time.Now()
	deadline := start.Add(timeout)

	// each evaluation is bounded by the wait's deadline, so a hung driver call
	// cannot outlive the timeout
	pctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var lastErr error
	attempts := 0
	timedOut := func() error {
		elapsed := time.Since(start)
		w.metrics.ObserveWait(kind, metrics.OutcomeTimeout, elapsed)
		w.logger.Debug().
			Str("condition", cond.Name).
			Int("attempts", attempts).
			Dur("elapsed", elapsed).
			Err(lastErr).
			Msg("Condition wait timed out")
		return &models.TimeoutError{
			Condition: cond.Name,
			Timeout:   timeout,
			Elapsed:   elapsed,
			LastErr:   lastErr,
		}
	}

	for {
		attempts++
		ok, err := cond.Predicate(pctx, d)
		if err == nil && ok {
			w.metrics.ObserveWait(kind, metrics.OutcomeSuccess, time.Since(start))
			return nil
		}
		if err != nil {
			if pctx.Err() != nil && ctx.Err() == nil {
				// cut off by our own deadline, not the caller's
				if lastErr == nil {
					lastErr = err
				}
				return timedOut()
			}
			if !slices.Contains(tolerated, models.KindOf(err)) {
				w.metrics.ObserveWait(kind, metrics.OutcomeError, time.Since(start))
				return err
			}
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timedOut()
		}

		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		if timer == nil {
			timer = time.NewTimer(sleep)
		} else {
			timer.Reset(sleep)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ValueCondition is a condition whose successful evaluation also produces a value
type ValueCondition[T any] struct {
	Name     string
	Kind     string
	Eval     func(ctx context.Context, d interfaces.Driver) (T, bool, error)
	Timeout  time.Duration
	Interval time.Duration
	Tolerate []models.ErrorKind
}

// AwaitValue waits for c on d (or on the current session when d is nil) and
// returns the value captured by the evaluation that satisfied it
func AwaitValue[T any](ctx context.Context, w *Waiter, d interfaces.Driver, c ValueCondition[T]) (T, error) {
	var result T
	if d == nil {
		var err error
		if d, err = w.driver(ctx); err != nil {
			return result, err
		}
	}

	cond := Condition{
		Name:     c.Name,
		Kind:     c.Kind,
		Timeout:  c.Timeout,
		Interval: c.Interval,
		Tolerate: c.Tolerate,
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			v, ok, err := c.Eval(ctx, d)
			if err != nil || !ok {
				return false, err
			}
			result = v
			return true, nil
		},
	}
	err := w.AwaitOn(ctx, d, cond)
	return result, err
}

func (w *Waiter) bounds(timeout, interval time.Duration) (time.Duration, time.Duration) {
	if timeout <= 0 {
		timeout = w.opts.Timeout
	}
	if interval <= 0 {
		interval = w.opts.Interval
	}
	return timeout, interval
}

func (w *Waiter) driver(ctx context.Context) (interfaces.Driver, error) {
	if w.source == nil {
		return nil, fmt.Errorf("waiter has no session source")
	}
	s, err := w.source.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.Driver(), nil
}
