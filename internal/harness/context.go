// Package harness gives each Go test its own worker, session and page
// services. The worker ID is the test name, so parallel tests never share a
// browser, and everything is released when the test ends.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ternarybob/pagekit/internal/app"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/element"
	"github.com/ternarybob/pagekit/internal/services/page"
	"github.com/ternarybob/pagekit/internal/services/session"
)

var unsafeDir = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Context holds per-test state. Create it with NewContext; cleanup is registered with t.Cleanup.
type Context struct {
	T     testing.TB
	App   *app.App
	Ctx   context.Context
	Env   *page.Env
	Scope *session.Scope

	cleanup       []func()
	screenshotNum int
}

// NewContext creates the worker for t. timeout bounds the whole test.
func NewContext(t testing.TB, a *app.App, timeout time.Duration) *Context {
	t.Helper()

	worker := models.WorkerID(t.Name())
	env, scope := a.PageEnv(worker)
	env.ScreenshotDir = filepath.Join(a.Config.Screenshots.Dir, unsafeDir.ReplaceAllString(t.Name(), "_"))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	tc := &Context{
		T:     t,
		App:   a,
		Ctx:   ctx,
		Env:   env,
		Scope: scope,
	}

	// run in reverse order (LIFO)
	tc.cleanup = append(tc.cleanup, cancel)
	tc.cleanup = append(tc.cleanup, func() {
		if err := scope.Release(); err != nil {
			t.Logf("Warning: session release returned: %v", err)
		}
	})
	tc.cleanup = append(tc.cleanup, tc.captureFailure)

	t.Cleanup(tc.Cleanup)
	return tc
}

// Cleanup runs the registered cleanups once, newest first
func (tc *Context) Cleanup() {
	if tc.T.Failed() {
		tc.Log("=== TEST RESULT: FAIL ===")
	} else {
		tc.Log("=== TEST RESULT: PASS ===")
	}
	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
	tc.cleanup = nil
}

// Defer adds a cleanup that runs before the session is released
func (tc *Context) Defer(fn func()) {
	tc.cleanup = append(tc.cleanup, fn)
}

// Log writes to the test log and the worker's logger
func (tc *Context) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	tc.T.Log(msg)
	tc.Env.Logger.Debug().Str("worker", tc.Scope.Worker().String()).Msg(msg)
}

// Screenshot saves a viewport screenshot with a sequential number prefix
func (tc *Context) Screenshot(name string) (string, error) {
	tc.screenshotNum++
	b := page.NewBase(tc.Env)
	return b.Screenshot(tc.Ctx, fmt.Sprintf("%02d_%s", tc.screenshotNum, name))
}

func (tc *Context) captureFailure() {
	if !tc.T.Failed() || !tc.App.Config.Screenshots.OnFailure {
		return
	}
	if _, ok := tc.App.Registry.Peek(tc.Scope.Worker()); !ok {
		// never started a browser, nothing to capture
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b := page.NewBase(tc.Env)
	if path, err := b.Screenshot(ctx, "failure"); err != nil {
		tc.T.Logf("Warning: failure screenshot: %v", err)
	} else {
		tc.T.Logf("Failure screenshot: %s", path)
	}
	if path, err := b.SaveDOM(ctx, "failure"); err != nil {
		tc.T.Logf("Warning: failure DOM snapshot: %v", err)
	} else {
		tc.T.Logf("Failure DOM snapshot: %s", path)
	}
}

// Open initialises p and navigates to it, failing the test on error
func (tc *Context) Open(p page.Page) {
	tc.T.Helper()
	if err := page.Open(tc.Ctx, p); err != nil {
		tc.T.Fatalf("open %T: %v", p, err)
	}
}

// Base returns a page base bound to this test's services, for embedding in page objects
func (tc *Context) Base() page.Base {
	return page.NewBase(tc.Env)
}

// Navigate goes to url (absolute or relative to the base URL)
func (tc *Context) Navigate(url string) error {
	b := page.NewBase(tc.Env)
	_, err := tc.Env.Nav.NavigateTo(tc.Ctx, b.URL(url))
	return err
}

// Find returns a handle for loc
func (tc *Context) Find(loc models.Locator) *element.Handle {
	return tc.Env.Elements.Locate(loc)
}

// Named returns a handle for a catalog entry
func (tc *Context) Named(key string) *element.Handle {
	tc.T.Helper()
	loc, err := tc.App.Catalog.Lookup(key)
	if err != nil {
		tc.T.Fatalf("locator %s: %v", key, err)
	}
	return tc.Env.Elements.LocateNamed(key, loc)
}
