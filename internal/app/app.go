// -----------------------------------------------------------------------
// App - wires config, launcher, session registry and locator catalog,
// and hands each worker its own page environment
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/common"
	"github.com/ternarybob/pagekit/internal/drivers"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/element"
	"github.com/ternarybob/pagekit/internal/services/locators"
	"github.com/ternarybob/pagekit/internal/services/navigation"
	"github.com/ternarybob/pagekit/internal/services/page"
	"github.com/ternarybob/pagekit/internal/services/session"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

// App holds the components shared by every worker
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Registry *session.Registry
	Catalog  *locators.Catalog
	Metrics  *metrics.Metrics

	// Gatherer is set when metrics are enabled
	Gatherer prometheus.Gatherer
}

// New builds the app with the real browser launcher
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	return NewWithLauncher(cfg, drivers.NewLauncher(cfg.BrowserOptions(), logger), logger)
}

// NewWithLauncher builds the app around launcher, which tests replace with the fake
func NewWithLauncher(cfg *common.Config, launcher interfaces.Launcher, logger arbor.ILogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		a.Metrics = metrics.New(reg)
		a.Gatherer = reg
	}

	catalog, err := locators.Load(cfg.Locators.Files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load locators: %w", err)
	}
	a.Catalog = catalog

	a.Registry = session.NewRegistry(launcher, cfg.SessionOptions(), logger, a.Metrics)

	logger.Info().
		Str("engine", cfg.Engine().String()).
		Int("locator_pages", len(catalog.Pages())).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("Application initialization complete")

	return a, nil
}

// PageEnv builds the per-worker services. Every service fetches the session
// through the worker's scope, so a replaced session is picked up on the next call.
func (a *App) PageEnv(worker models.WorkerID) (*page.Env, *session.Scope) {
	scope := a.Registry.Scope(worker)
	logger := a.Logger.WithCorrelationId(string(worker))

	waiter := wait.NewWaiter(scope, a.Config.WaitOptions(), logger, a.Metrics)
	navOpts := a.Config.NavigationOptions()

	env := &page.Env{
		Source:        scope,
		Waiter:        waiter,
		Elements:      element.NewFactory(scope, waiter, logger, a.Metrics),
		Nav:           navigation.NewController(scope, waiter, navOpts, logger, a.Metrics),
		Catalog:       a.Catalog,
		BaseURL:       a.Config.Navigation.BaseURL,
		ScreenshotDir: a.Config.Screenshots.Dir,
		LoadTimeout:   navOpts.PageLoadTimeout,
		Logger:        logger,
	}
	return env, scope
}

// CrashState reports which workers hold sessions, for crash reports
func (a *App) CrashState() map[string]string {
	workers := a.Registry.Workers()
	names := make([]string, len(workers))
	for i, w := range workers {
		names[i] = w.String()
	}
	return map[string]string{
		"engine":  a.Config.Engine().String(),
		"workers": strings.Join(names, ","),
	}
}

// Close releases every session and writes the metrics textfile when enabled
func (a *App) Close() error {
	err := a.Registry.ReleaseAll()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to release some sessions")
	}
	if a.Gatherer != nil {
		if werr := metrics.WriteTextfile(a.Config.Metrics.Textfile, a.Gatherer); werr != nil {
			a.Logger.Warn().Err(werr).Str("path", a.Config.Metrics.Textfile).Msg("Failed to write metrics textfile")
			if err == nil {
				err = werr
			}
		} else {
			a.Logger.Debug().Str("path", a.Config.Metrics.Textfile).Msg("Metrics textfile written")
		}
	}
	return err
}
