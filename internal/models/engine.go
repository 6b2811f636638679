package models

import (
	"fmt"
	"strings"
)

// EngineKind selects the browser engine backing a session
type EngineKind string

const (
	EngineChrome   EngineKind = "chrome"
	EngineEdge     EngineKind = "edge"
	EngineChromium EngineKind = "chromium" // rod-managed browser download
	EngineRemote   EngineKind = "remote"   // already-running browser reached over its debugging URL
	EngineFirefox  EngineKind = "firefox"
)

// DefaultEngine is used when no engine is configured
const DefaultEngine = EngineChrome

// ParseEngineKind maps a configured engine name to an EngineKind.
// Empty input yields DefaultEngine.
func ParseEngineKind(s string) (EngineKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultEngine, nil
	case "chrome", "googlechrome", "google-chrome":
		return EngineChrome, nil
	case "edge", "msedge":
		return EngineEdge, nil
	case "chromium", "rod":
		return EngineChromium, nil
	case "remote":
		return EngineRemote, nil
	case "firefox", "ff":
		return EngineFirefox, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
}

func (k EngineKind) String() string {
	return string(k)
}

// WorkerID identifies one worker driving exactly one session
type WorkerID string

func (w WorkerID) String() string {
	return string(w)
}
