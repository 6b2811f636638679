// Package drivers picks the backend for an engine kind. chrome, edge and remote
// go through chromedp; chromium goes through rod's managed browser.
package drivers

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	cdpdriver "github.com/ternarybob/pagekit/internal/drivers/chromedp"
	roddriver "github.com/ternarybob/pagekit/internal/drivers/rod"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// Backend is a launcher that knows which engines it serves
type Backend interface {
	interfaces.Launcher
	Supports(engine models.EngineKind) bool
}

// Launcher dispatches Launch to the first backend supporting the engine
type Launcher struct {
	backends []Backend
	logger   arbor.ILogger
}

var _ interfaces.Launcher = (*Launcher)(nil)

// NewLauncher wires the chromedp and rod backends with shared browser options
func NewLauncher(opts models.BrowserOptions, logger arbor.ILogger) *Launcher {
	return NewLauncherWith(logger,
		cdpdriver.NewLauncher(opts, logger),
		roddriver.NewLauncher(opts, logger),
	)
}

func NewLauncherWith(logger arbor.ILogger, backends ...Backend) *Launcher {
	return &Launcher{backends: backends, logger: logger}
}

func (l *Launcher) Launch(ctx context.Context, engine models.EngineKind) (interfaces.Driver, error) {
	for _, b := range l.backends {
		if !b.Supports(engine) {
			continue
		}
		l.logger.Debug().
			Str("engine", engine.String()).
			Str("backend", fmt.Sprintf("%T", b)).
			Msg("Launching browser")
		return b.Launch(ctx, engine)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedEngine, engine)
}
