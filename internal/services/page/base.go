// Package page is the base for page objects. A page object embeds Base, sets up
// its handles in InitLocators and reports readiness through IsPageLoaded.
package page

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/element"
	"github.com/ternarybob/pagekit/internal/services/locators"
	"github.com/ternarybob/pagekit/internal/services/navigation"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

// Page is implemented by page objects that embed Base
type Page interface {
	InitLocators()
	IsPageLoaded(ctx context.Context) bool
	Path() string

	pageBase() *Base
}

// Env carries the per-worker services a page object works through
type Env struct {
	Source        interfaces.SessionSource
	Waiter        *wait.Waiter
	Elements      *element.Factory
	Nav           *navigation.Controller
	Catalog       *locators.Catalog
	BaseURL       string
	ScreenshotDir string
	LoadTimeout   time.Duration
	Logger        arbor.ILogger
}

// Base is embedded by page objects
type Base struct {
	*Env
}

func NewBase(env *Env) Base {
	if env.Logger == nil {
		env.Logger = arbor.NewLogger()
	}
	if env.Catalog == nil {
		env.Catalog = locators.New()
	}
	return Base{Env: env}
}

func (b *Base) pageBase() *Base { return b }

// Find returns a locator-backed handle
func (b *Base) Find(loc models.Locator) *element.Handle {
	return b.Elements.Locate(loc)
}

// Named returns a handle for a catalog entry, named "page.name" in errors and logs
func (b *Base) Named(page, name string) *element.Handle {
	return b.Elements.LocateNamed(page+"."+name, b.Catalog.MustGet(page, name))
}

// URL joins the base URL and path; an absolute path is returned unchanged
func (b *Base) URL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if path == "" {
		return b.BaseURL
	}
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (b *Base) driver(ctx context.Context) (interfaces.Driver, error) {
	s, err := b.Source.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.Driver(), nil
}

func (b *Base) CurrentURL(ctx context.Context) (string, error) {
	return b.Nav.CurrentURL(ctx)
}

func (b *Base) Title(ctx context.Context) (string, error) {
	d, err := b.driver(ctx)
	if err != nil {
		return "", err
	}
	return d.Title(ctx)
}

func (b *Base) Refresh(ctx context.Context) error {
	return b.Nav.Refresh(ctx)
}

// ExecuteScript runs a function body; element handles in args are resolved to references first
func (b *Base) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	resolved := make([]any, len(args))
	for i, a := range args {
		if h, ok := a.(*element.Handle); ok {
			ref, err := h.Resolve(ctx)
			if err != nil {
				return nil, err
			}
			resolved[i] = ref
			continue
		}
		resolved[i] = a
	}
	d, err := b.driver(ctx)
	if err != nil {
		return nil, err
	}
	return d.ExecuteScript(ctx, script, resolved...)
}

// WaitFor awaits cond on the page's session
func (b *Base) WaitFor(ctx context.Context, cond wait.Condition) error {
	return b.Waiter.Await(ctx, cond)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const outerHTMLScript = `return document.documentElement.outerHTML;`

// Screenshot captures the viewport to <ScreenshotDir>/<name>.png and returns the path
func (b *Base) Screenshot(ctx context.Context, name string) (string, error) {
	d, err := b.driver(ctx)
	if err != nil {
		return "", err
	}
	png, err := d.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", name, err)
	}
	path, err := b.writeArtifact(name, ".png", png)
	if err != nil {
		return "", err
	}
	b.Logger.Debug().Str("path", path).Msg("Screenshot saved")
	return path, nil
}

// SaveDOM writes the current document as markdown to <ScreenshotDir>/<name>.md.
// Links are made absolute against the current URL.
func (b *Base) SaveDOM(ctx context.Context, name string) (string, error) {
	d, err := b.driver(ctx)
	if err != nil {
		return "", err
	}
	raw, err := d.ExecuteScript(ctx, outerHTMLScript)
	if err != nil {
		return "", fmt.Errorf("dom snapshot %s: %w", name, err)
	}
	html, _ := raw.(string)
	current, err := d.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("dom snapshot %s: %w", name, err)
	}

	converter := md.NewConverter(current, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		b.Logger.Warn().Err(err).Str("url", current).Msg("HTML to markdown conversion failed, keeping raw HTML")
		markdown = html
	}

	path, err := b.writeArtifact(name, ".md", []byte(markdown))
	if err != nil {
		return "", err
	}
	b.Logger.Debug().
		Str("path", path).
		Int("html_length", len(html)).
		Int("markdown_length", len(markdown)).
		Msg("DOM snapshot saved")
	return path, nil
}

func (b *Base) writeArtifact(name, ext string, data []byte) (string, error) {
	dir := b.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, unsafeName.ReplaceAllString(name, "_")+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Open initialises p's locators, navigates to its path and waits until it reports loaded
func Open(ctx context.Context, p Page) error {
	b := p.pageBase()
	p.InitLocators()

	url := b.URL(p.Path())
	res, err := b.Nav.NavigateTo(ctx, url)
	if err != nil {
		return fmt.Errorf("open %T: %w", p, err)
	}

	err = b.Waiter.Await(ctx, wait.Condition{
		Name:    fmt.Sprintf("page loaded (%T)", p),
		Kind:    "page_loaded",
		Timeout: b.LoadTimeout,
		Predicate: func(ctx context.Context, _ interfaces.Driver) (bool, error) {
			return p.IsPageLoaded(ctx), nil
		},
	})
	if err != nil {
		return fmt.Errorf("open %T at %s: %w", p, res.FinalURL, err)
	}

	b.Logger.Debug().
		Str("page", fmt.Sprintf("%T", p)).
		Str("url", res.FinalURL).
		Bool("url_matched", res.Matched).
		Msg("Page opened")
	return nil
}
