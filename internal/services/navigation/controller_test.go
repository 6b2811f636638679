package navigation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/drivers/fake"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

func newTestController(d *fake.Driver, opts Options, m *metrics.Metrics) *Controller {
	src := fake.NewSource(d)
	w := wait.NewWaiter(src, wait.Options{Timeout: time.Second, Interval: 20 * time.Millisecond}, arbor.NewLogger(), m)
	if opts.PageLoadTimeout == 0 {
		opts.PageLoadTimeout = 200 * time.Millisecond
	}
	return NewController(src, w, opts, arbor.NewLogger(), m)
}

func TestNavigateTo_Success(t *testing.T) {
	d := fake.New()
	d.Cookies = 3
	c := newTestController(d, DefaultOptions(), nil)

	res, err := c.NavigateTo(context.Background(), "https://app.test/login")
	require.NoError(t, err)

	assert.True(t, res.Matched)
	assert.False(t, res.Retried)
	assert.Equal(t, "https://app.test/login", res.FinalURL)
	assert.Equal(t, 0, d.Cookies)
}

func TestNavigateTo_KeepsCookiesWhenDisabled(t *testing.T) {
	d := fake.New()
	d.Cookies = 2
	c := newTestController(d, Options{ScriptRetry: true}, nil)

	_, err := c.NavigateTo(context.Background(), "https://app.test/")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Cookies)
}

func TestNavigateTo_ScriptRetryRecovers(t *testing.T) {
	d := fake.New()
	target := "https://app.test/dashboard"
	d.Redirects[target] = "https://app.test/"
	d.ScriptHook = func(script string, args []any) (any, bool, error) {
		if strings.Contains(script, "window.location.href") {
			// the second attempt is not intercepted
			delete(d.Redirects, target)
		}
		return nil, false, nil
	}
	c := newTestController(d, DefaultOptions(), nil)

	res, err := c.NavigateTo(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, res.Retried)
	assert.True(t, res.Matched)
	assert.Equal(t, target, res.FinalURL)
}

func TestNavigateTo_ScriptRetryWaitsForLocationChange(t *testing.T) {
	d := fake.New()
	target := "https://app.test/reports"
	d.Redirects[target] = "https://app.test/"
	d.ScriptHook = func(script string, args []any) (any, bool, error) {
		if !strings.Contains(script, "window.location.href") {
			return nil, false, nil
		}
		// the browser starts the new load a little later; until then the
		// old document keeps reporting readyState complete
		time.AfterFunc(80*time.Millisecond, func() {
			_ = d.Navigate(context.Background(), target+"?from=script")
		})
		return nil, true, nil
	}
	c := newTestController(d, DefaultOptions(), nil)

	res, err := c.NavigateTo(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, res.Retried)
	assert.True(t, res.Matched)
	assert.Equal(t, target+"?from=script", res.FinalURL)
}

func TestNavigateTo_ResidualMismatchIsNotAnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := fake.New()
	d.Redirects["https://app.test/admin"] = "https://sso.test/login"
	c := newTestController(d, DefaultOptions(), metrics.New(reg))

	res, err := c.NavigateTo(context.Background(), "https://app.test/admin")
	require.NoError(t, err)
	assert.True(t, res.Retried)
	assert.False(t, res.Matched)
	assert.Equal(t, "https://sso.test/login", res.FinalURL)

	expected := `
# HELP pagekit_navigations_total Navigations by outcome.
# TYPE pagekit_navigations_total counter
pagekit_navigations_total{outcome="mismatch"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pagekit_navigations_total"))
}

func TestNavigateTo_NoScriptRetry(t *testing.T) {
	d := fake.New()
	d.Redirects["https://app.test/a"] = "https://app.test/b"
	c := newTestController(d, Options{}, nil)

	res, err := c.NavigateTo(context.Background(), "https://app.test/a")
	require.NoError(t, err)
	assert.False(t, res.Retried)
	assert.False(t, res.Matched)
	for _, s := range d.Scripts() {
		assert.NotContains(t, s, "window.location.href")
	}
}

func TestNavigateTo_DocumentReadyTimeoutPropagates(t *testing.T) {
	d := fake.New()
	d.ReadyState = "loading"
	c := newTestController(d, Options{PageLoadTimeout: 100 * time.Millisecond}, nil)

	_, err := c.NavigateTo(context.Background(), "https://app.test/slow")
	require.Error(t, err)
	var te *models.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "document ready", te.Condition)
}

func TestNavigateTo_PendingRequestsAreBestEffort(t *testing.T) {
	d := fake.New()
	d.Pending = true
	c := newTestController(d, Options{PageLoadTimeout: 100 * time.Millisecond}, nil)

	res, err := c.NavigateTo(context.Background(), "https://app.test/busy")
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestNavigateTo_DriverErrorPropagates(t *testing.T) {
	d := fake.New()
	d.FailNavigate(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	c := newTestController(d, DefaultOptions(), nil)

	_, err := c.NavigateTo(context.Background(), "https://nowhere.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestNavigateTo_SessionErrorPropagates(t *testing.T) {
	src := &fake.Source{Err: &models.SessionInitError{Worker: "w1", Engine: models.EngineChrome, Attempts: 3, Err: errors.New("no chrome")}}
	w := wait.NewWaiter(src, wait.Options{}, arbor.NewLogger(), nil)
	c := NewController(src, w, DefaultOptions(), arbor.NewLogger(), nil)

	_, err := c.NavigateTo(context.Background(), "https://app.test/")
	assert.ErrorIs(t, err, models.ErrSessionInit)
}

func TestController_BackAndRefresh(t *testing.T) {
	d := fake.New()
	c := newTestController(d, DefaultOptions(), nil)
	ctx := context.Background()

	_, err := c.NavigateTo(ctx, "https://app.test/one")
	require.NoError(t, err)
	_, err = c.NavigateTo(ctx, "https://app.test/two")
	require.NoError(t, err)

	require.NoError(t, c.Back(ctx))
	u, err := c.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/one", u)

	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.WaitForReady(ctx))
}

func TestController_SwitchToWindow(t *testing.T) {
	d := fake.New()
	d.OpenWindow("window-2")
	c := newTestController(d, DefaultOptions(), nil)
	ctx := context.Background()

	handles, err := c.OpenWindows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"window-1", "window-2"}, handles)

	h, err := c.SwitchToWindow(ctx, func(w WindowInfo) bool { return w.Handle == "window-2" })
	require.NoError(t, err)
	assert.Equal(t, "window-2", h)
	assert.Equal(t, "window-2", d.CurrentWindow())

	_, err = c.SwitchToWindow(ctx, func(w WindowInfo) bool { return w.Title == "Nope" })
	assert.ErrorIs(t, err, ErrWindowNotFound)
	assert.Equal(t, "window-1", d.CurrentWindow())

	latest, err := c.SwitchToLatestWindow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "window-2", latest)
}
