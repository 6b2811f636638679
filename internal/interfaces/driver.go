// Package interfaces provides the driver and session interfaces shared by the
// wait, element, session and navigation services.
package interfaces

import (
	"context"

	"github.com/ternarybob/pagekit/internal/models"
)

// RemoteRef is an opaque handle to one concrete remote UI object.
// It can go stale at any time; drivers report that as models.KindStale.
type RemoteRef interface {
	ID() string
}

// Driver is the remote browser capability consumed by the core.
// Every failure is returned as a *models.DriverError so callers can branch on
// models.KindOf instead of inspecting backend errors.
type Driver interface {
	// FindElements returns all matches for loc. A nil scope searches the document,
	// otherwise the search is relative to scope. No matches is an empty slice, not an error.
	FindElements(ctx context.Context, scope RemoteRef, loc models.Locator) ([]RemoteRef, error)

	// Element reads
	Text(ctx context.Context, ref RemoteRef) (string, error)
	// Attribute returns the attribute value and whether the attribute is present
	Attribute(ctx context.Context, ref RemoteRef, name string) (string, bool, error)
	// Property reads a DOM property (value, checked, outerHTML...) as a string
	Property(ctx context.Context, ref RemoteRef, name string) (string, error)
	CSSValue(ctx context.Context, ref RemoteRef, property string) (string, error)
	TagName(ctx context.Context, ref RemoteRef) (string, error)
	Rect(ctx context.Context, ref RemoteRef) (models.Rect, error)
	IsDisplayed(ctx context.Context, ref RemoteRef) (bool, error)
	IsEnabled(ctx context.Context, ref RemoteRef) (bool, error)
	IsSelected(ctx context.Context, ref RemoteRef) (bool, error)

	// Element actions
	Click(ctx context.Context, ref RemoteRef) error
	DoubleClick(ctx context.Context, ref RemoteRef) error
	// Hover moves the pointer to the element centre plus offset
	Hover(ctx context.Context, ref RemoteRef, offset models.Point) error
	DragTo(ctx context.Context, src, dst RemoteRef) error
	Clear(ctx context.Context, ref RemoteRef) error
	SendKeys(ctx context.Context, ref RemoteRef, text string) error
	Submit(ctx context.Context, ref RemoteRef) error
	ScrollIntoView(ctx context.Context, ref RemoteRef) error
	ElementScreenshot(ctx context.Context, ref RemoteRef) ([]byte, error)

	// ExecuteScript runs a function body with `arguments` bound to args.
	// RemoteRef arguments are passed as elements. The result is JSON-decoded.
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)

	// Page level
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Back(ctx context.Context) error
	Refresh(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	DeleteAllCookies(ctx context.Context) error
	ActiveElement(ctx context.Context) (RemoteRef, error)

	// Close releases the browser behind the driver
	Close() error
}

// RefReleaser is implemented by drivers whose references pin objects in the
// remote page. Released references must not be used again.
type RefReleaser interface {
	ReleaseRefs(ctx context.Context, refs ...RemoteRef)
}

// Release frees refs when d supports it and is a no-op otherwise
func Release(ctx context.Context, d Driver, refs ...RemoteRef) {
	if len(refs) == 0 {
		return
	}
	if r, ok := d.(RefReleaser); ok {
		r.ReleaseRefs(ctx, refs...)
	}
}

// Launcher opens a driver for an engine kind
type Launcher interface {
	Launch(ctx context.Context, engine models.EngineKind) (Driver, error)
}
