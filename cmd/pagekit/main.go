package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/app"
	"github.com/ternarybob/pagekit/internal/common"
	"github.com/ternarybob/pagekit/internal/models"
)

// configPaths allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// checkKeys allows multiple -check flags, each a page.name catalog key
type checkKeys []string

func (c *checkKeys) String() string {
	return strings.Join(*c, ",")
}

func (c *checkKeys) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	checks      checkKeys
	targetURL   = flag.String("url", "", "Page to open, absolute or relative to navigation.base_url")
	baseURL     = flag.String("base-url", "", "Base URL (overrides config)")
	workers     = flag.Int("workers", 1, "Number of parallel workers, one browser each")
	engine      = flag.String("engine", "", "Browser engine: chrome, edge, chromium, remote (overrides config)")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&checks, "check", "Catalog locator that must become visible, e.g. login.username (repeatable)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Pagekit version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("pagekit.toml"); err == nil {
			configFiles = append(configFiles, "pagekit.toml")
		}
	}

	// 1. defaults -> files -> env, 2. flags, 3. logger, 4. banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *engine, *baseURL)

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler(common.LogDir(config), nil)
	defer common.RecoverWithCrashFile(logger)

	logger.Debug().
		Str("engine", config.Browser.Engine).
		Bool("headless", config.Browser.Headless).
		Str("base_url", config.Navigation.BaseURL).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	common.InstallCrashHandler(common.LogDir(config), application.CrashState)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	runID := models.NewRunID()
	logger.Info().
		Str("run_id", runID).
		Int("workers", *workers).
		Strs("checks", checks).
		Str("url", *targetURL).
		Msg("Starting page checks")

	results, runErr := runChecks(ctx, application, checkOptions{
		RunID:   runID,
		Workers: *workers,
		Path:    *targetURL,
		Checks:  checks,
	})
	for _, r := range results {
		if r.Worker == "" {
			continue
		}
		logger.Info().
			Str("worker", r.Worker.String()).
			Str("session_id", r.SessionID).
			Str("final_url", r.FinalURL).
			Bool("url_matched", r.Matched).
			Str("screenshot", r.Screenshot).
			Str("dom_snapshot", r.DOMSnapshot).
			Dur("elapsed", r.Elapsed).
			Msg("Worker finished")
	}

	if err := application.Close(); err != nil {
		logger.Warn().Err(err).Msg("Shutdown reported errors")
	}

	if runErr != nil {
		logger.Error().
			Str("run_id", runID).
			Str("error_kind", models.KindOf(runErr).String()).
			Err(runErr).
			Msg("Page checks failed")
		os.Exit(1)
	}
	logger.Info().Str("run_id", runID).Msg("Page checks passed")
}
