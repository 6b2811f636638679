package models

import "time"

// BrowserOptions configures how a backend starts or attaches to a browser
type BrowserOptions struct {
	Headless     bool
	NoSandbox    bool
	DisableGPU   bool
	UserAgent    string
	ExecPath     string // empty means look the binary up
	RemoteURL    string // debugging URL for EngineRemote
	WindowWidth  int
	WindowHeight int

	// StartupTimeout bounds the startup probe, not the browser's lifetime
	StartupTimeout time.Duration
}

// DefaultBrowserOptions returns headless defaults suited to CI
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:       true,
		NoSandbox:      true,
		DisableGPU:     true,
		UserAgent:      "Pagekit/1.0",
		WindowWidth:    1366,
		WindowHeight:   768,
		StartupTimeout: 30 * time.Second,
	}
}
