package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/navigation"
	"github.com/ternarybob/pagekit/internal/services/session"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

// Config represents the application configuration
type Config struct {
	Browser     BrowserConfig     `toml:"browser"`
	Waits       WaitsConfig       `toml:"waits"`
	Navigation  NavigationConfig  `toml:"navigation"`
	Logging     LoggingConfig     `toml:"logging"`
	Screenshots ScreenshotsConfig `toml:"screenshots"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Locators    LocatorsConfig    `toml:"locators"`
}

type BrowserConfig struct {
	Engine         string  `toml:"engine" validate:"required"` // chrome, edge, chromium, remote
	Headless       bool    `toml:"headless"`
	NoSandbox      bool    `toml:"no_sandbox"`
	DisableGPU     bool    `toml:"disable_gpu"`
	UserAgent      string  `toml:"user_agent"`
	ExecPath       string  `toml:"exec_path"`
	RemoteURL      string  `toml:"remote_url" validate:"omitempty,url"` // ws:// or http:// debugging endpoint
	WindowWidth    int     `toml:"window_width" validate:"gte=0"`
	WindowHeight   int     `toml:"window_height" validate:"gte=0"`
	LaunchTimeout  string  `toml:"launch_timeout" validate:"required"` // e.g. "60s"
	LaunchRate     float64 `toml:"launch_rate" validate:"gte=0"`       // launches per second, 0 = unlimited
	LaunchAttempts int     `toml:"launch_attempts" validate:"gte=1,lte=10"`
	ProbeTimeout   string  `toml:"probe_timeout" validate:"required"` // liveness probe bound
}

type WaitsConfig struct {
	ExplicitTimeout string `toml:"explicit_timeout" validate:"required"`
	PollInterval    string `toml:"poll_interval" validate:"required"`
	PageLoadTimeout string `toml:"page_load_timeout" validate:"required"`
}

type NavigationConfig struct {
	BaseURL      string `toml:"base_url" validate:"omitempty,url"`
	ClearCookies bool   `toml:"clear_cookies"`
	ScriptRetry  bool   `toml:"script_retry"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
	Dir    string   `toml:"dir"` // empty = logs/ next to the executable
}

type ScreenshotsConfig struct {
	Dir       string `toml:"dir" validate:"required"`
	OnFailure bool   `toml:"on_failure"`
}

type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Textfile string `toml:"textfile" validate:"required_if=Enabled true"`
}

type LocatorsConfig struct {
	Files []string `toml:"files"`
}

// NewDefaultConfig returns the configuration used when no file sets a value
func NewDefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:         string(models.DefaultEngine),
			Headless:       true,
			NoSandbox:      true,
			DisableGPU:     true,
			UserAgent:      "Pagekit/1.0",
			WindowWidth:    1366,
			WindowHeight:   768,
			LaunchTimeout:  "60s",
			LaunchRate:     2,
			LaunchAttempts: 3,
			ProbeTimeout:   "5s",
		},
		Waits: WaitsConfig{
			ExplicitTimeout: "10s",
			PollInterval:    "250ms",
			PageLoadTimeout: "30s",
		},
		Navigation: NavigationConfig{
			ClearCookies: true,
			ScriptRetry:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Screenshots: ScreenshotsConfig{
			Dir:       "screenshots",
			OnFailure: true,
		},
		Metrics: MetricsConfig{
			Textfile: "pagekit.prom",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. CLI flags are applied afterwards with ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func envBool(name string, target *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func envInt(name string, target *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envString(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

// applyEnvOverrides applies PAGEKIT_* environment variables to config
func applyEnvOverrides(config *Config) {
	// Browser
	envString("PAGEKIT_BROWSER_ENGINE", &config.Browser.Engine)
	envBool("PAGEKIT_BROWSER_HEADLESS", &config.Browser.Headless)
	envBool("PAGEKIT_BROWSER_NO_SANDBOX", &config.Browser.NoSandbox)
	envString("PAGEKIT_BROWSER_EXEC_PATH", &config.Browser.ExecPath)
	envString("PAGEKIT_BROWSER_REMOTE_URL", &config.Browser.RemoteURL)
	envString("PAGEKIT_BROWSER_LAUNCH_TIMEOUT", &config.Browser.LaunchTimeout)
	envInt("PAGEKIT_BROWSER_LAUNCH_ATTEMPTS", &config.Browser.LaunchAttempts)
	if rate := os.Getenv("PAGEKIT_BROWSER_LAUNCH_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Browser.LaunchRate = r
		}
	}

	// Waits
	envString("PAGEKIT_WAITS_EXPLICIT_TIMEOUT", &config.Waits.ExplicitTimeout)
	envString("PAGEKIT_WAITS_POLL_INTERVAL", &config.Waits.PollInterval)
	envString("PAGEKIT_WAITS_PAGE_LOAD_TIMEOUT", &config.Waits.PageLoadTimeout)

	// Navigation
	envString("PAGEKIT_BASE_URL", &config.Navigation.BaseURL)
	envBool("PAGEKIT_NAVIGATION_CLEAR_COOKIES", &config.Navigation.ClearCookies)

	// Logging
	envString("PAGEKIT_LOG_LEVEL", &config.Logging.Level)
	if output := os.Getenv("PAGEKIT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}

	// Screenshots and metrics
	envString("PAGEKIT_SCREENSHOTS_DIR", &config.Screenshots.Dir)
	envBool("PAGEKIT_METRICS_ENABLED", &config.Metrics.Enabled)
	envString("PAGEKIT_METRICS_TEXTFILE", &config.Metrics.Textfile)
}

// ApplyFlagOverrides applies command-line flag overrides to config. Empty values are ignored.
func ApplyFlagOverrides(config *Config, engine, baseURL string) {
	if engine != "" {
		config.Browser.Engine = engine
	}
	if baseURL != "" {
		config.Navigation.BaseURL = baseURL
	}
}

// Validate checks struct tags, then the engine name and every duration string
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := models.ParseEngineKind(c.Browser.Engine); err != nil {
		return fmt.Errorf("invalid config: browser.engine: %w", err)
	}
	durations := map[string]string{
		"browser.launch_timeout":  c.Browser.LaunchTimeout,
		"browser.probe_timeout":   c.Browser.ProbeTimeout,
		"waits.explicit_timeout":  c.Waits.ExplicitTimeout,
		"waits.poll_interval":     c.Waits.PollInterval,
		"waits.page_load_timeout": c.Waits.PageLoadTimeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid config: %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", key, value)
		}
	}
	return nil
}

// parseDuration returns fallback for values Validate would reject
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Engine returns the parsed engine, falling back to the default
func (c *Config) Engine() models.EngineKind {
	engine, err := models.ParseEngineKind(c.Browser.Engine)
	if err != nil {
		return models.DefaultEngine
	}
	return engine
}

func (c *Config) BrowserOptions() models.BrowserOptions {
	return models.BrowserOptions{
		Headless:       c.Browser.Headless,
		NoSandbox:      c.Browser.NoSandbox,
		DisableGPU:     c.Browser.DisableGPU,
		UserAgent:      c.Browser.UserAgent,
		ExecPath:       c.Browser.ExecPath,
		RemoteURL:      c.Browser.RemoteURL,
		WindowWidth:    c.Browser.WindowWidth,
		WindowHeight:   c.Browser.WindowHeight,
		StartupTimeout: parseDuration(c.Browser.LaunchTimeout, 60*time.Second),
	}
}

func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Engine:         c.Engine(),
		ProbeTimeout:   parseDuration(c.Browser.ProbeTimeout, 5*time.Second),
		LaunchTimeout:  parseDuration(c.Browser.LaunchTimeout, 60*time.Second),
		LaunchRate:     c.Browser.LaunchRate,
		LaunchAttempts: c.Browser.LaunchAttempts,
	}
}

func (c *Config) WaitOptions() wait.Options {
	return wait.Options{
		Timeout:  parseDuration(c.Waits.ExplicitTimeout, 10*time.Second),
		Interval: parseDuration(c.Waits.PollInterval, 250*time.Millisecond),
	}
}

func (c *Config) NavigationOptions() navigation.Options {
	return navigation.Options{
		PageLoadTimeout: parseDuration(c.Waits.PageLoadTimeout, 30*time.Second),
		ClearCookies:    c.Navigation.ClearCookies,
		ScriptRetry:     c.Navigation.ScriptRetry,
	}
}
