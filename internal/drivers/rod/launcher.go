package rod

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

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

func (l *Launcher) Supports(engine models.EngineKind) bool {
	return engine == models.EngineChromium
}

func (l *Launcher) newLauncher(ctx context.Context) *launcher.Launcher {
	ln := launcher.New().
		Context(ctx).
		Headless(l.opts.Headless).
		NoSandbox(l.opts.NoSandbox).
		Leakless(true)
	if l.opts.ExecPath != "" {
		ln = ln.Bin(l.opts.ExecPath)
	}
	if l.opts.DisableGPU {
		ln = ln.Set("disable-gpu")
	}
	if l.opts.UserAgent != "" {
		ln = ln.Set("user-agent", l.opts.UserAgent)
	}
	if l.opts.WindowWidth > 0 && l.opts.WindowHeight > 0 {
		ln = ln.Set("window-size", fmt.Sprintf("%d,%d", l.opts.WindowWidth, l.opts.WindowHeight))
	}
	return ln
}

// Launch starts a managed Chromium, downloading it on first use. ctx and the
// startup timeout bound startup only.
func (l *Launcher) Launch(ctx context.Context, engine models.EngineKind) (interfaces.Driver, error) {
	if !l.Supports(engine) {
		return nil, fmt.Errorf("%w: rod cannot drive %s", models.ErrUnsupportedEngine, engine)
	}
	startTime := time.Now()

	browserCtx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(l.opts.StartupTimeout, cancel)
	stop := context.AfterFunc(ctx, cancel)

	ln := l.newLauncher(browserCtx)
	browser, page, err := l.start(browserCtx, ln)

	timer.Stop()
	stop()
	if err == nil && browserCtx.Err() != nil {
		err = browserCtx.Err()
	}
	if err != nil {
		if browser != nil {
			_ = browser.Close()
		}
		cancel()
		ln.Kill()
		ln.Cleanup()
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

	return &Driver{
		browser:  browser,
		launcher: ln,
		cancel:   cancel,
		logger:   l.logger,
		page:     page,
		order:    []proto.TargetTargetID{page.TargetID},
	}, nil
}

func (l *Launcher) start(ctx context.Context, ln *launcher.Launcher) (*rod.Browser, *rod.Page, error) {
	controlURL, err := ln.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return browser, nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return browser, nil, fmt.Errorf("page load: %w", err)
	}
	if _, err := page.Info(); err != nil {
		return browser, nil, fmt.Errorf("responsiveness test: %w", err)
	}
	return browser, page, nil
}
