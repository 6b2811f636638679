// -----------------------------------------------------------------------
// Navigation Controller - page transitions with readiness and URL checks
// -----------------------------------------------------------------------

package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

const locationScript = `window.location.href = arguments[0];`

// ErrWindowNotFound is returned when no open window satisfies a switch predicate
var ErrWindowNotFound = errors.New("window not found")

// Options configures navigation
type Options struct {
	PageLoadTimeout time.Duration
	ClearCookies    bool
	ScriptRetry     bool
}

// DefaultOptions returns a 30s page load timeout with cookie clearing and script retry on
func DefaultOptions() Options {
	return Options{
		PageLoadTimeout: 30 * time.Second,
		ClearCookies:    true,
		ScriptRetry:     true,
	}
}

// Result describes a completed navigation
type Result struct {
	RequestedURL string
	FinalURL     string
	Matched      bool
	Retried      bool
	Elapsed      time.Duration
}

// Controller runs page transitions for one worker's session source
type Controller struct {
	source  interfaces.SessionSource
	waiter  *wait.Waiter
	opts    Options
	logger  arbor.ILogger
	metrics *metrics.Metrics
}

// NewController creates a controller. m may be nil.
func NewController(source interfaces.SessionSource, waiter *wait.Waiter, opts Options, logger arbor.ILogger, m *metrics.Metrics) *Controller {
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = DefaultOptions().PageLoadTimeout
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Controller{source: source, waiter: waiter, opts: opts, logger: logger, metrics: m}
}

func (c *Controller) session(ctx context.Context) (interfaces.SessionHandle, error) {
	return c.source.Current(ctx)
}

// NavigateTo loads url and waits for the page to settle.
//
// When the browser ends up somewhere that does not contain url, the navigation
// is retried once through window.location. A mismatch that survives the retry is
// logged and reported through Result.Matched rather than returned as an error.
func (c *Controller) NavigateTo(ctx context.Context, url string) (Result, error) {
	res := Result{RequestedURL: url}
	start := time.Now()

	s, err := c.session(ctx)
	if err != nil {
		return res, err
	}
	d := s.Driver()

	if c.opts.ClearCookies {
		if err := d.DeleteAllCookies(ctx); err != nil {
			c.logger.Debug().Str("session_id", s.ID()).Err(err).Msg("Clearing cookies before navigation failed")
		}
	}

	c.logger.Debug().
		Str("session_id", s.ID()).
		Str("url", url).
		Msg("Navigating")

	if err := d.Navigate(ctx, url); err != nil {
		c.metrics.Navigation(metrics.OutcomeError)
		return res, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := c.waitForReady(ctx, d); err != nil {
		c.metrics.Navigation(outcomeOf(err))
		return res, fmt.Errorf("navigate to %s: %w", url, err)
	}

	current, err := d.CurrentURL(ctx)
	if err != nil {
		c.metrics.Navigation(metrics.OutcomeError)
		return res, fmt.Errorf("navigate to %s: %w", url, err)
	}

	if !strings.Contains(current, url) && c.opts.ScriptRetry {
		c.logger.Debug().
			Str("requested", url).
			Str("current", current).
			Msg("URL mismatch after navigation, retrying through window.location")
		res.Retried = true

		if _, err := d.ExecuteScript(ctx, locationScript, url); err != nil {
			c.metrics.Navigation(metrics.OutcomeError)
			return res, fmt.Errorf("navigate to %s via script: %w", url, err)
		}
		// the old document still reports complete until the new one starts loading
		if err := c.awaitLocationChange(ctx, d, current, url); err != nil {
			c.metrics.Navigation(outcomeOf(err))
			return res, fmt.Errorf("navigate to %s via script: %w", url, err)
		}
		if err := c.waitForReady(ctx, d); err != nil {
			c.metrics.Navigation(outcomeOf(err))
			return res, fmt.Errorf("navigate to %s via script: %w", url, err)
		}
		if current, err = d.CurrentURL(ctx); err != nil {
			c.metrics.Navigation(metrics.OutcomeError)
			return res, fmt.Errorf("navigate to %s: %w", url, err)
		}
	}

	res.FinalURL = current
	res.Matched = strings.Contains(current, url)
	res.Elapsed = time.Since(start)

	if !res.Matched {
		c.metrics.Navigation(metrics.OutcomeMismatch)
		c.logger.Warn().
			Str("session_id", s.ID()).
			Str("requested", url).
			Str("current", current).
			Msg("Navigation ended on a different URL")
		return res, nil
	}

	c.metrics.Navigation(metrics.OutcomeSuccess)
	c.logger.Debug().
		Str("url", current).
		Dur("elapsed", res.Elapsed).
		Bool("retried", res.Retried).
		Msg("Navigation complete")
	return res, nil
}

// WaitForReady waits for document.readyState to complete, then for pending
// jQuery/Angular requests to drain. Only the first wait can fail the call.
func (c *Controller) WaitForReady(ctx context.Context) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	return c.waitForReady(ctx, s.Driver())
}

func (c *Controller) waitForReady(ctx context.Context, d interfaces.Driver) error {
	if err := c.waiter.AwaitOn(ctx, d, wait.DocumentReady().WithTimeout(c.opts.PageLoadTimeout)); err != nil {
		return err
	}

	err := c.waiter.AwaitOn(ctx, d, wait.NoPendingRequests().WithTimeout(c.opts.PageLoadTimeout))
	if err == nil {
		return nil
	}
	if models.KindOf(err) == models.KindTimeout {
		c.logger.Warn().
			Dur("timeout", c.opts.PageLoadTimeout).
			Msg("Pending requests did not drain, continuing")
		return nil
	}
	return err
}

// awaitLocationChange waits until the location leaves from or reaches want.
// Running out of time is not an error, the URL check that follows reports it.
func (c *Controller) awaitLocationChange(ctx context.Context, d interfaces.Driver, from, want string) error {
	err := c.waiter.AwaitOn(ctx, d, wait.Condition{
		Name:    fmt.Sprintf("location change to %q", want),
		Kind:    "url",
		Timeout: c.opts.PageLoadTimeout,
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			u, err := d.CurrentURL(ctx)
			if err != nil {
				return false, err
			}
			return u != from || strings.Contains(u, want), nil
		},
	})
	if models.KindOf(err) == models.KindTimeout {
		c.logger.Debug().
			Str("requested", want).
			Str("current", from).
			Msg("Location did not change after script navigation")
		return nil
	}
	return err
}

func (c *Controller) Back(ctx context.Context) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	if err := s.Driver().Back(ctx); err != nil {
		return fmt.Errorf("back: %w", err)
	}
	return c.waitForReady(ctx, s.Driver())
}

func (c *Controller) Refresh(ctx context.Context) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	if err := s.Driver().Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return c.waitForReady(ctx, s.Driver())
}

func (c *Controller) CurrentURL(ctx context.Context) (string, error) {
	s, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	return s.Driver().CurrentURL(ctx)
}

// OpenWindows returns the handles of every open window or tab
func (c *Controller) OpenWindows(ctx context.Context) ([]string, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Driver().WindowHandles(ctx)
}

// WindowInfo is what a window predicate sees
type WindowInfo struct {
	Handle string
	URL    string
	Title  string
}

// SwitchToWindow activates the first window whose info satisfies match and returns its handle.
// When none matches, the first window is re-activated and ErrWindowNotFound returned.
func (c *Controller) SwitchToWindow(ctx context.Context, match func(WindowInfo) bool) (string, error) {
	s, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	d := s.Driver()

	handles, err := d.WindowHandles(ctx)
	if err != nil {
		return "", fmt.Errorf("switch window: %w", err)
	}
	if len(handles) == 0 {
		return "", ErrWindowNotFound
	}

	for _, h := range handles {
		if err := d.SwitchWindow(ctx, h); err != nil {
			return "", fmt.Errorf("switch window %s: %w", h, err)
		}
		info := WindowInfo{Handle: h}
		if info.URL, err = d.CurrentURL(ctx); err != nil {
			return "", err
		}
		if info.Title, err = d.Title(ctx); err != nil {
			return "", err
		}
		if match(info) {
			c.logger.Debug().Str("window", h).Str("url", info.URL).Msg("Switched window")
			return h, nil
		}
	}

	if err := d.SwitchWindow(ctx, handles[0]); err != nil {
		return "", fmt.Errorf("restore window: %w", err)
	}
	return "", ErrWindowNotFound
}

// SwitchToLatestWindow activates the most recently opened window
func (c *Controller) SwitchToLatestWindow(ctx context.Context) (string, error) {
	s, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	handles, err := s.Driver().WindowHandles(ctx)
	if err != nil {
		return "", fmt.Errorf("switch window: %w", err)
	}
	if len(handles) == 0 {
		return "", ErrWindowNotFound
	}
	latest := handles[len(handles)-1]
	return latest, s.Driver().SwitchWindow(ctx, latest)
}

func outcomeOf(err error) string {
	if models.KindOf(err) == models.KindTimeout {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}
