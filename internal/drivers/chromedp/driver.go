// Package chromedp drives Chrome, Edge or an already-running browser over the
// DevTools protocol using chromedp. Element references are runtime object IDs,
// so a reference goes stale exactly when the page discards the object.
package chromedp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/drivers/scripts"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Driver implements interfaces.Driver on one browser. Calls are bridged from
// the caller's context onto the current tab's chromedp context.
type Driver struct {
	engine        models.EngineKind
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        arbor.ILogger

	mu      sync.Mutex
	current target.ID
	tabs    map[target.ID]tab
	order   []target.ID

	closeOnce sync.Once
	closeErr  error
}

func newDriver(engine models.EngineKind, browserCtx context.Context, browserCancel, allocCancel context.CancelFunc, logger arbor.ILogger) *Driver {
	d := &Driver{
		engine:        engine,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        logger,
		tabs:          make(map[target.ID]tab),
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		d.current = c.Target.TargetID
		d.tabs[d.current] = tab{ctx: browserCtx, cancel: browserCancel}
		d.order = append(d.order, d.current)
	}
	return d
}

func (d *Driver) tabContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[d.current]; ok {
		return t.ctx
	}
	return d.browserCtx
}

// run executes fn on the current tab. The caller's cancellation and deadline
// are carried over without tying the tab's lifetime to the caller.
func (d *Driver) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return models.NewDriverError(models.KindCanceled, op, err)
	}
	runCtx, cancel := context.WithCancel(d.tabContext())
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return wrapError(ctx, op, chromedp.Run(runCtx, chromedp.ActionFunc(fn)))
}

func callArguments(args []any) ([]*runtime.CallArgument, error) {
	out := make([]*runtime.CallArgument, 0, len(args))
	for i, a := range args {
		if ref, ok := a.(interfaces.RemoteRef); ok {
			id, err := objectID("argument", ref)
			if err != nil {
				return nil, err
			}
			out = append(out, &runtime.CallArgument{ObjectID: id})
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, &runtime.CallArgument{Value: jsontext.Value(raw)})
	}
	return out, nil
}

// callOn calls a function declaration with `this` bound to obj
func callOn(ctx context.Context, obj runtime.RemoteObjectID, decl string, byValue bool, args ...any) (*runtime.RemoteObject, error) {
	cargs, err := callArguments(args)
	if err != nil {
		return nil, err
	}
	res, exc, err := runtime.CallFunctionOn(decl).
		WithObjectID(obj).
		WithArguments(cargs).
		WithReturnByValue(byValue).
		WithAwaitPromise(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, &scriptError{msg: exceptionText(exc)}
	}
	return res, nil
}

func decode(obj *runtime.RemoteObject, out any) error {
	if obj == nil || len(obj.Value) == 0 {
		return nil
	}
	return json.Unmarshal(obj.Value, out)
}

func document(ctx context.Context) (runtime.RemoteObjectID, error) {
	res, exc, err := runtime.Evaluate("document").Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", &scriptError{msg: exceptionText(exc)}
	}
	return res.ObjectID, nil
}

// callElement runs an element function and decodes its by-value result into out
func (d *Driver) callElement(ctx context.Context, op string, ref interfaces.RemoteRef, decl string, out any, args ...any) error {
	id, err := objectID(op, ref)
	if err != nil {
		return err
	}
	return d.run(ctx, op, func(ctx context.Context) error {
		res, err := callOn(ctx, id, decl, true, args...)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return decode(res, out)
	})
}

// FindElements runs the locator in the page and collects one object per match
func (d *Driver) FindElements(ctx context.Context, scope interfaces.RemoteRef, loc models.Locator) ([]interfaces.RemoteRef, error) {
	if err := loc.Validate(); err != nil {
		return nil, models.NewDriverError(models.KindInvalidLocator, "find", err)
	}
	var root runtime.RemoteObjectID
	if scope != nil {
		id, err := objectID("find", scope)
		if err != nil {
			return nil, err
		}
		root = id
	}

	var refs []interfaces.RemoteRef
	err := d.run(ctx, "find", func(ctx context.Context) error {
		if root == "" {
			doc, err := document(ctx)
			if err != nil {
				return err
			}
			defer runtime.ReleaseObject(doc).Do(ctx) //nolint:errcheck
			root = doc
		}
		arr, err := callOn(ctx, root, scripts.Find, false, string(loc.Strategy), loc.Value)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(arr.ObjectID).Do(ctx) //nolint:errcheck

		lenObj, err := callOn(ctx, arr.ObjectID, scripts.Length, true)
		if err != nil {
			return err
		}
		var n int
		if err := decode(lenObj, &n); err != nil {
			return err
		}
		refs = make([]interfaces.RemoteRef, 0, n)
		for i := 0; i < n; i++ {
			el, err := callOn(ctx, arr.ObjectID, scripts.Index, false, i)
			if err != nil {
				return err
			}
			refs = append(refs, objectRef{id: el.ObjectID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ReleaseRefs frees the remote objects behind refs. Failures are ignored, the
// objects may already be gone with their document.
func (d *Driver) ReleaseRefs(ctx context.Context, refs ...interfaces.RemoteRef) {
	ids := make([]runtime.RemoteObjectID, 0, len(refs))
	for _, ref := range refs {
		if r, ok := ref.(objectRef); ok && r.id != "" {
			ids = append(ids, r.id)
		}
	}
	if len(ids) == 0 {
		return
	}
	_ = d.run(ctx, "release", func(ctx context.Context) error {
		for _, id := range ids {
			_ = runtime.ReleaseObject(id).Do(ctx)
		}
		return nil
	})
}

func (d *Driver) Text(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	var s string
	err := d.callElement(ctx, "text", ref, scripts.Text, &s)
	return s, err
}

func (d *Driver) Attribute(ctx context.Context, ref interfaces.RemoteRef, name string) (string, bool, error) {
	var res struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	err := d.callElement(ctx, "attribute", ref, scripts.Attribute, &res, name)
	return res.Value, res.Present, err
}

func (d *Driver) Property(ctx context.Context, ref interfaces.RemoteRef, name string) (string, error) {
	var s string
	err := d.callElement(ctx, "property", ref, scripts.Property, &s, name)
	return s, err
}

func (d *Driver) CSSValue(ctx context.Context, ref interfaces.RemoteRef, property string) (string, error) {
	var s string
	err := d.callElement(ctx, "css value", ref, scripts.CSSValue, &s, property)
	return s, err
}

func (d *Driver) TagName(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	var s string
	err := d.callElement(ctx, "tag name", ref, scripts.TagName, &s)
	return s, err
}

func (d *Driver) Rect(ctx context.Context, ref interfaces.RemoteRef) (models.Rect, error) {
	var r models.Rect
	err := d.callElement(ctx, "rect", ref, scripts.Rect, &r)
	return r, err
}

func (d *Driver) IsDisplayed(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	var b bool
	err := d.callElement(ctx, "is displayed", ref, scripts.IsDisplayed, &b)
	return b, err
}

func (d *Driver) IsEnabled(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	var b bool
	err := d.callElement(ctx, "is enabled", ref, scripts.IsEnabled, &b)
	return b, err
}

func (d *Driver) IsSelected(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	var b bool
	err := d.callElement(ctx, "is selected", ref, scripts.IsSelected, &b)
	return b, err
}

// centre scrolls the element into view and returns the viewport point pointer actions target
func centre(ctx context.Context, id runtime.RemoteObjectID) (models.Point, error) {
	if _, err := callOn(ctx, id, scripts.ScrollIntoView, true); err != nil {
		return models.Point{}, err
	}
	res, err := callOn(ctx, id, scripts.Rect, true)
	if err != nil {
		return models.Point{}, err
	}
	var r models.Rect
	if err := decode(res, &r); err != nil {
		return models.Point{}, err
	}
	if r.Empty() {
		return models.Point{}, models.NewDriverError(models.KindNotInteractable, "pointer", fmt.Errorf("element has no size"))
	}
	return r.Center(), nil
}

func (d *Driver) pointer(ctx context.Context, op string, ref interfaces.RemoteRef, fn func(ctx context.Context, at models.Point) error) error {
	id, err := objectID(op, ref)
	if err != nil {
		return err
	}
	return d.run(ctx, op, func(ctx context.Context) error {
		at, err := centre(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, at)
	})
}

func (d *Driver) Click(ctx context.Context, ref interfaces.RemoteRef) error {
	return d.pointer(ctx, "click", ref, func(ctx context.Context, at models.Point) error {
		return chromedp.MouseClickXY(at.X, at.Y).Do(ctx)
	})
}

func (d *Driver) DoubleClick(ctx context.Context, ref interfaces.RemoteRef) error {
	return d.pointer(ctx, "double click", ref, func(ctx context.Context, at models.Point) error {
		if err := chromedp.MouseClickXY(at.X, at.Y).Do(ctx); err != nil {
			return err
		}
		return chromedp.MouseClickXY(at.X, at.Y, chromedp.ClickCount(2)).Do(ctx)
	})
}

func (d *Driver) Hover(ctx context.Context, ref interfaces.RemoteRef, offset models.Point) error {
	return d.pointer(ctx, "hover", ref, func(ctx context.Context, at models.Point) error {
		return input.DispatchMouseEvent(input.MouseMoved, at.X+offset.X, at.Y+offset.Y).Do(ctx)
	})
}

func (d *Driver) DragTo(ctx context.Context, src, dst interfaces.RemoteRef) error {
	srcID, err := objectID("drag", src)
	if err != nil {
		return err
	}
	dstID, err := objectID("drag", dst)
	if err != nil {
		return err
	}
	return d.run(ctx, "drag", func(ctx context.Context) error {
		from, err := centre(ctx, srcID)
		if err != nil {
			return err
		}
		steps := []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(input.MouseMoved, from.X, from.Y),
			input.DispatchMouseEvent(input.MousePressed, from.X, from.Y).WithButton(input.Left).WithClickCount(1),
		}
		for _, s := range steps {
			if err := s.Do(ctx); err != nil {
				return err
			}
		}
		to, err := centre(ctx, dstID)
		if err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseMoved, to.X, to.Y).WithButton(input.Left).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, to.X, to.Y).WithButton(input.Left).WithClickCount(1).Do(ctx)
	})
}

func (d *Driver) Clear(ctx context.Context, ref interfaces.RemoteRef) error {
	return d.callElement(ctx, "clear", ref, scripts.Clear, nil)
}

// SendKeys focuses the element and types text; "\n" presses Enter
func (d *Driver) SendKeys(ctx context.Context, ref interfaces.RemoteRef, text string) error {
	id, err := objectID("send keys", ref)
	if err != nil {
		return err
	}
	return d.run(ctx, "send keys", func(ctx context.Context) error {
		if _, err := callOn(ctx, id, scripts.Focus, true); err != nil {
			return err
		}
		return chromedp.KeyEvent(strings.ReplaceAll(text, "\n", "\r")).Do(ctx)
	})
}

func (d *Driver) Submit(ctx context.Context, ref interfaces.RemoteRef) error {
	return d.callElement(ctx, "submit", ref, scripts.Submit, nil)
}

func (d *Driver) ScrollIntoView(ctx context.Context, ref interfaces.RemoteRef) error {
	return d.callElement(ctx, "scroll into view", ref, scripts.ScrollIntoView, nil)
}

func (d *Driver) ElementScreenshot(ctx context.Context, ref interfaces.RemoteRef) ([]byte, error) {
	id, err := objectID("element screenshot", ref)
	if err != nil {
		return nil, err
	}
	var png []byte
	err = d.run(ctx, "element screenshot", func(ctx context.Context) error {
		if _, err := callOn(ctx, id, scripts.ScrollIntoView, true); err != nil {
			return err
		}
		res, err := callOn(ctx, id, scripts.PageRect, true)
		if err != nil {
			return err
		}
		var r models.Rect
		if err := decode(res, &r); err != nil {
			return err
		}
		if r.Empty() {
			return models.NewDriverError(models.KindNotInteractable, "element screenshot", fmt.Errorf("element has no size"))
		}
		png, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Scale: 1}).
			Do(ctx)
		return err
	})
	return png, err
}

// ExecuteScript calls the body as a function on the document; element arguments
// are passed by object ID and the result is returned by value
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	var out any
	err := d.run(ctx, "execute script", func(ctx context.Context) error {
		doc, err := document(ctx)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(doc).Do(ctx) //nolint:errcheck
		res, err := callOn(ctx, doc, scripts.Function(script), true, args...)
		if err != nil {
			return err
		}
		return decode(res, &out)
	})
	return out, err
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", func(ctx context.Context) error {
		return chromedp.Navigate(url).Do(ctx)
	})
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, "current url", func(ctx context.Context) error {
		return chromedp.Location(&u).Do(ctx)
	})
	return u, err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var t string
	err := d.run(ctx, "title", func(ctx context.Context) error {
		return chromedp.Title(&t).Do(ctx)
	})
	return t, err
}

func (d *Driver) Back(ctx context.Context) error {
	return d.run(ctx, "back", func(ctx context.Context) error {
		return chromedp.NavigateBack().Do(ctx)
	})
}

func (d *Driver) Refresh(ctx context.Context) error {
	return d.run(ctx, "refresh", func(ctx context.Context) error {
		return chromedp.Reload().Do(ctx)
	})
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := d.run(ctx, "screenshot", func(ctx context.Context) error {
		return chromedp.CaptureScreenshot(&png).Do(ctx)
	})
	return png, err
}

// WindowHandles lists page targets, oldest first
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	var infos []*target.Info
	err := d.run(ctx, "window handles", func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	live := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			live[info.TargetID] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.order[:0]
	seen := make(map[target.ID]bool, len(d.order))
	for _, id := range d.order {
		if live[id] {
			kept = append(kept, id)
			seen[id] = true
		}
	}
	for _, info := range infos {
		if live[info.TargetID] && !seen[info.TargetID] {
			kept = append(kept, info.TargetID)
			seen[info.TargetID] = true
		}
	}
	d.order = kept

	handles := make([]string, len(kept))
	for i, id := range kept {
		handles[i] = string(id)
	}
	return handles, nil
}

// SwitchWindow attaches to the target on first use and brings it to the front
func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	id := target.ID(handle)

	d.mu.Lock()
	_, attached := d.tabs[id]
	d.mu.Unlock()

	if !attached {
		tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
		stop := context.AfterFunc(ctx, cancel)
		err := chromedp.Run(tabCtx)
		stopped := stop()
		if err != nil || !stopped {
			cancel()
			if err == nil {
				err = ctx.Err()
			}
			return wrapError(ctx, "switch window", err)
		}
		d.mu.Lock()
		d.tabs[id] = tab{ctx: tabCtx, cancel: cancel}
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.current = id
	d.mu.Unlock()

	return d.run(ctx, "switch window", func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return target.ActivateTarget(id).Do(cdp.WithExecutor(ctx, c.Browser))
	})
}

func (d *Driver) DeleteAllCookies(ctx context.Context) error {
	return d.run(ctx, "delete cookies", func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	})
}

func (d *Driver) ActiveElement(ctx context.Context) (interfaces.RemoteRef, error) {
	var ref interfaces.RemoteRef
	err := d.run(ctx, "active element", func(ctx context.Context) error {
		doc, err := document(ctx)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(doc).Do(ctx) //nolint:errcheck
		res, err := callOn(ctx, doc, scripts.ActiveElement, false)
		if err != nil {
			return err
		}
		if res.ObjectID == "" || string(res.Subtype) != "node" {
			return models.NewDriverError(models.KindNotFound, "active element", fmt.Errorf("no focused element"))
		}
		ref = objectRef{id: res.ObjectID}
		return nil
	})
	return ref, err
}

// Close shuts the browser (or detaches from a remote one). Safe to call more than once.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		start := time.Now()
		d.mu.Lock()
		for id, t := range d.tabs {
			if t.ctx != d.browserCtx {
				t.cancel()
			}
			delete(d.tabs, id)
		}
		d.mu.Unlock()

		d.closeErr = chromedp.Cancel(d.browserCtx)
		d.browserCancel()
		if d.allocCancel != nil {
			d.allocCancel()
		}
		d.logger.Debug().
			Str("engine", d.engine.String()).
			Dur("elapsed", time.Since(start)).
			Err(d.closeErr).
			Msg("Browser closed")
	})
	return d.closeErr
}

var _ interfaces.Driver = (*Driver)(nil)
