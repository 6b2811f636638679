package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/app"
	"github.com/ternarybob/pagekit/internal/common"
	"github.com/ternarybob/pagekit/internal/drivers/fake"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/element"
	"github.com/ternarybob/pagekit/internal/services/page"
)

func newTestApp(t *testing.T, setup func(*fake.Driver)) (*app.App, *fake.Launcher) {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Waits.ExplicitTimeout = "300ms"
	cfg.Waits.PollInterval = "20ms"
	cfg.Waits.PageLoadTimeout = "300ms"
	cfg.Navigation.BaseURL = "https://app.test"
	cfg.Screenshots.Dir = t.TempDir()

	launcher := fake.NewLauncher()
	launcher.Setup = setup
	a, err := app.NewWithLauncher(cfg, launcher, arbor.NewLogger())
	require.NoError(t, err)
	a.Catalog.Set("home", "heading", models.ByCSS("h1"))
	return a, launcher
}

type homePage struct {
	page.Base
	heading *element.Handle
}

func (p *homePage) Path() string { return "/" }
func (p *homePage) InitLocators() {
	p.heading = p.Named("home", "heading")
}
func (p *homePage) IsPageLoaded(ctx context.Context) bool {
	return p.heading.IsDisplayed(ctx)
}

func TestContext_ReleasesSessionAtTestEnd(t *testing.T) {
	a, launcher := newTestApp(t, func(d *fake.Driver) {
		d.Add(fake.NewElement("h1"), models.ByCSS("h1"))
	})

	var shot string
	t.Run("home", func(t *testing.T) {
		tc := NewContext(t, a, 5*time.Second)
		p := &homePage{Base: tc.Base()}
		tc.Open(p)

		text, err := tc.Named("home.heading").Text(tc.Ctx)
		require.NoError(t, err)
		assert.Equal(t, "", text)

		shot, err = tc.Screenshot("home")
		require.NoError(t, err)
		assert.Equal(t, "01_home.png", filepath.Base(shot))
		assert.Equal(t, []models.WorkerID{models.WorkerID(t.Name())}, a.Registry.Workers())
	})

	assert.FileExists(t, shot)
	assert.Contains(t, shot, "TestContext_ReleasesSessionAtTestEnd_home")
	assert.Empty(t, a.Registry.Workers())
	require.Len(t, launcher.Drivers(), 1)
	assert.Equal(t, 1, launcher.Drivers()[0].CloseCalls())
}

func TestContext_ParallelTestsGetSeparateSessions(t *testing.T) {
	a, launcher := newTestApp(t, nil)

	t.Run("group", func(t *testing.T) {
		for _, name := range []string{"a", "b", "c"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				tc := NewContext(t, a, 5*time.Second)
				require.NoError(t, tc.Navigate("/"+name))
				u, err := tc.Env.Nav.CurrentURL(tc.Ctx)
				require.NoError(t, err)
				assert.Equal(t, "https://app.test/"+name, u)
			})
		}
	})

	assert.Len(t, launcher.Drivers(), 3)
	for _, d := range launcher.Drivers() {
		assert.Equal(t, 1, d.CloseCalls())
	}
}

func TestContext_DeferRunsBeforeRelease(t *testing.T) {
	a, _ := newTestApp(t, nil)
	var order []string

	t.Run("inner", func(t *testing.T) {
		tc := NewContext(t, a, time.Second)
		require.NoError(t, tc.Navigate("/"))
		tc.Defer(func() {
			_, held := a.Registry.Peek(tc.Scope.Worker())
			if held {
				order = append(order, "deferred-with-session")
			}
		})
	})

	assert.Equal(t, []string{"deferred-with-session"}, order)
	assert.Empty(t, a.Registry.Workers())
}
