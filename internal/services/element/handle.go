// -----------------------------------------------------------------------
// Element Handle - lazy, re-bindable reference to one remote UI object
// -----------------------------------------------------------------------

package element

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

// Factory builds handles that share a session source and a waiter.
// Page objects usually hold one Factory and create handles per use.
type Factory struct {
	source  interfaces.SessionSource
	waiter  *wait.Waiter
	logger  arbor.ILogger
	metrics *metrics.Metrics
}

// NewFactory creates an element factory. m may be nil.
func NewFactory(source interfaces.SessionSource, waiter *wait.Waiter, logger arbor.ILogger, m *metrics.Metrics) *Factory {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Factory{source: source, waiter: waiter, logger: logger, metrics: m}
}

// Locate returns a handle that resolves loc on first use and can re-resolve after staleness
func (f *Factory) Locate(loc models.Locator) *Handle {
	return &Handle{f: f, loc: loc, hasLocator: true}
}

// LocateNamed is Locate with a human-readable name used in errors and logs
func (f *Factory) LocateNamed(name string, loc models.Locator) *Handle {
	h := f.Locate(loc)
	h.name = name
	return h
}

// Wrap returns a handle bound permanently to ref. If ref goes stale the handle
// cannot recover and every operation fails with an UnrecoverableReferenceError.
func (f *Factory) Wrap(ref interfaces.RemoteRef, sessionID string) *Handle {
	return &Handle{f: f, cached: ref, cachedSession: sessionID}
}

// Handle wraps a locator, a resolved reference, or both.
// A handle belongs to one worker and is not meant to be shared.
type Handle struct {
	f          *Factory
	name       string
	loc        models.Locator
	hasLocator bool
	timeout    time.Duration

	mu            sync.Mutex
	cached        interfaces.RemoteRef
	cachedSession string
}

// WithTimeout overrides the waiter's default timeout for this handle's waits
func (h *Handle) WithTimeout(d time.Duration) *Handle {
	h.timeout = d
	return h
}

// Locator returns the handle's locator and whether it has one
func (h *Handle) Locator() (models.Locator, bool) {
	return h.loc, h.hasLocator
}

func (h *Handle) String() string {
	switch {
	case h.name != "":
		return h.name
	case h.hasLocator:
		return h.loc.String()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cached != nil {
		return "ref:" + h.cached.ID()
	}
	return "ref:<none>"
}

// Invalidate clears the cached reference so the next use re-queries the locator.
// It does nothing for handles without a locator.
func (h *Handle) Invalidate() {
	if !h.hasLocator {
		return
	}
	h.mu.Lock()
	h.cached = nil
	h.cachedSession = ""
	h.mu.Unlock()
}

func (h *Handle) cache() (interfaces.RemoteRef, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cached, h.cachedSession
}

func (h *Handle) store(ref interfaces.RemoteRef, sessionID string) {
	h.mu.Lock()
	h.cached = ref
	h.cachedSession = sessionID
	h.mu.Unlock()
}

// Resolve returns the remote reference for this handle.
//
// A cached reference is verified before it is returned and reused as is while
// it stays valid. A stale cache is re-resolved through the locator once;
// without a locator it is an UnrecoverableReferenceError. With no cache the
// call waits for the locator to match.
func (h *Handle) Resolve(ctx context.Context) (interfaces.RemoteRef, error) {
	s, err := h.f.source.Current(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := h.bind(ctx, s, present)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", h, err)
	}
	return ref, nil
}

// readiness is a check a resolved reference must pass before it is used
type readiness struct {
	name  string
	kind  string
	check func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) (bool, error)
}

var (
	present = readiness{
		name: "presence",
		kind: "presence",
		check: func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) (bool, error) {
			_, err := d.TagName(ctx, ref)
			return err == nil, err
		},
	}
	visible = readiness{
		name: "visibility",
		kind: "visibility",
		check: func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) (bool, error) {
			return d.IsDisplayed(ctx, ref)
		},
	}
	clickable = readiness{
		name:  "clickability",
		kind:  "clickable",
		check: wait.Clickable,
	}
)

// bind resolves the handle on session s and waits until ready holds for the reference.
func (h *Handle) bind(ctx context.Context, s interfaces.SessionHandle, ready readiness) (interfaces.RemoteRef, error) {
	current, sessionID := h.cache()
	staleSeen := false

	if current != nil && sessionID != s.ID() {
		// the session was replaced since this reference was resolved
		if !h.hasLocator {
			return nil, h.unrecoverable(models.NewDriverError(models.KindStale, "resolve", fmt.Errorf("session %s replaced by %s", sessionID, s.ID())))
		}
		h.Invalidate()
		current = nil
		staleSeen = true
		h.f.metrics.ElementRebound()
	}

	eval := func(ctx context.Context, d interfaces.Driver) (interfaces.RemoteRef, bool, error) {
		for i := 0; i < 2; i++ {
			if current == nil {
				if !h.hasLocator {
					return nil, false, h.unrecoverable(models.ErrStaleReference)
				}
				ref, err := wait.FindFirst(ctx, d, nil, h.loc)
				if err != nil {
					return nil, false, err
				}
				current = ref
			}

			ok, err := ready.check(ctx, d, current)
			if err == nil {
				return current, ok, nil
			}
			if !models.IsStale(err) {
				return nil, false, err
			}
			if !h.hasLocator {
				return nil, false, h.unrecoverable(err)
			}

			h.f.logger.Debug().
				Str("element", h.String()).
				Str("session_id", s.ID()).
				Msg("Cached element reference is stale, re-resolving")
			interfaces.Release(ctx, d, current)
			h.Invalidate()
			current = nil
			staleSeen = true
			h.f.metrics.ElementRebound()
		}
		return nil, false, models.NewDriverError(models.KindStale, "resolve", nil)
	}

	ref, err := wait.AwaitValue(ctx, h.f.waiter, s.Driver(), wait.ValueCondition[interfaces.RemoteRef]{
		Name:    fmt.Sprintf("%s of %s", ready.name, h),
		Kind:    ready.kind,
		Eval:    eval,
		Timeout: h.timeout,
	})
	if err != nil {
		if staleSeen && models.KindOf(err) == models.KindTimeout {
			return nil, h.unrecoverable(err)
		}
		return nil, err
	}

	h.store(ref, s.ID())
	return ref, nil
}

func (h *Handle) unrecoverable(err error) error {
	return &models.UnrecoverableReferenceError{Element: h.String(), Err: err}
}

// act runs a mutating action: resolve through ready, optionally scroll, act,
// and on a stale reference re-resolve once through the locator before giving up.
func (h *Handle) act(ctx context.Context, op string, ready readiness, scroll bool, fn func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error) error {
	return h.withRebind(ctx, op, ready, scroll, fn)
}

// read resolves without a readiness precondition and runs fn, with the same
// single re-resolve on a stale reference as act
func (h *Handle) read(ctx context.Context, op string, fn func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error) error {
	return h.withRebind(ctx, op, present, false, fn)
}

func (h *Handle) withRebind(ctx context.Context, op string, ready readiness, scroll bool, fn func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error) error {
	for attempt := 0; ; attempt++ {
		s, err := h.f.source.Current(ctx)
		if err != nil {
			return err
		}
		ref, err := h.bind(ctx, s, ready)
		if err != nil {
			if attempt > 0 && models.KindOf(err) == models.KindTimeout {
				// the re-resolve after a stale reference found nothing
				return fmt.Errorf("%s: %w", op, h.unrecoverable(err))
			}
			return fmt.Errorf("%s %s: %w", op, h, err)
		}

		d := s.Driver()
		if scroll {
			err = d.ScrollIntoView(ctx, ref)
		}
		if err == nil {
			err = fn(ctx, d, ref)
		}
		if err == nil {
			return nil
		}

		if !models.IsStale(err) {
			return fmt.Errorf("%s %s: %w", op, h, err)
		}
		if !h.hasLocator {
			return fmt.Errorf("%s: %w", op, h.unrecoverable(err))
		}
		if attempt > 0 {
			return fmt.Errorf("%s %s after re-resolving: %w", op, h, err)
		}

		h.f.logger.Debug().
			Str("element", h.String()).
			Str("op", op).
			Msg("Element went stale during operation, retrying once")
		interfaces.Release(ctx, d, ref)
		h.Invalidate()
		h.f.metrics.ElementRebound()
	}
}

// session exposes the current session for derived handles
func (h *Handle) session(ctx context.Context) (interfaces.SessionHandle, interfaces.RemoteRef, error) {
	s, err := h.f.source.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	ref, err := h.bind(ctx, s, present)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", h, err)
	}
	return s, ref, nil
}
