// -----------------------------------------------------------------------
// Launcher - starts Chrome/Edge or attaches to a remote browser and
// proves it responsive before handing out a driver
// -----------------------------------------------------------------------

package chromedp

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// edgeBinaries are tried in order when no exec path is configured for Edge
var edgeBinaries = []string{
	"microsoft-edge",
	"microsoft-edge-stable",
	"msedge",
	`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
}

type Launcher struct {
	opts   models.BrowserOptions
	logger arbor.ILogger
}

func NewLauncher(opts models.BrowserOptions, logger arbor.ILogger) *Launcher {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 30 * time.Second
	}
	return &Launcher{opts: opts, logger: logger}
}

// Supports reports the engines this launcher can start
func (l *Launcher) Supports(engine models.EngineKind) bool {
	switch engine {
	case models.EngineChrome, models.EngineEdge, models.EngineRemote:
		return true
	}
	return false
}

func (l *Launcher) allocatorOptions(engine models.EngineKind) ([]chromedp.ExecAllocatorOption, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", l.opts.DisableGPU),
		chromedp.Flag("no-sandbox", l.opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
	)
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.WindowWidth > 0 && l.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight))
	}

	execPath := l.opts.ExecPath
	if execPath == "" && engine == models.EngineEdge {
		path, err := findBinary(edgeBinaries)
		if err != nil {
			return nil, err
		}
		execPath = path
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return opts, nil
}

func findBinary(candidates []string) (string, error) {
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no browser binary found (tried %v)", candidates)
}

// Launch starts the browser and runs a startup probe. ctx and the startup
// timeout bound the probe only; the browser lives until the driver is closed.
func (l *Launcher) Launch(ctx context.Context, engine models.EngineKind) (interfaces.Driver, error) {
	if !l.Supports(engine) {
		return nil, fmt.Errorf("%w: chromedp cannot drive %s", models.ErrUnsupportedEngine, engine)
	}
	startTime := time.Now()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if engine == models.EngineRemote {
		if l.opts.RemoteURL == "" {
			return nil, fmt.Errorf("remote engine requires browser.remote_url")
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.opts.RemoteURL)
	} else {
		opts, err := l.allocatorOptions(engine)
		if err != nil {
			return nil, err
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// the first Run allocates the browser, so it must not run under a short-lived context
	timer := time.AfterFunc(l.opts.StartupTimeout, browserCancel)
	stop := context.AfterFunc(ctx, browserCancel)
	var title string
	err := chromedp.Run(browserCtx)
	if err == nil {
		err = chromedp.Run(browserCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title))
	}
	timer.Stop()
	stop()
	if err == nil && browserCtx.Err() != nil {
		err = browserCtx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("browser instance failed startup test: %w", err)
	}

	l.logger.Debug().
		Str("engine", engine.String()).
		Bool("headless", l.opts.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created and tested successfully")

	return newDriver(engine, browserCtx, browserCancel, allocCancel, l.logger), nil
}
