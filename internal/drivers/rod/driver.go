// Package rod drives a rod-managed Chromium. The launcher downloads a pinned
// browser build when none is installed, which keeps CI images free of a
// system Chrome.
package rod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ternarybob/arbor"
	"github.com/ysmood/gson"

	"github.com/ternarybob/pagekit/internal/drivers/scripts"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

type elementRef struct {
	el *rod.Element
}

func (r elementRef) ID() string {
	if r.el == nil || r.el.Object == nil {
		return ""
	}
	return string(r.el.Object.ObjectID)
}

func element(op string, ref interfaces.RemoteRef) (*rod.Element, error) {
	r, ok := ref.(elementRef)
	if !ok || r.el == nil {
		return nil, models.NewDriverError(models.KindOther, op, fmt.Errorf("reference %T was not issued by this driver", ref))
	}
	return r.el, nil
}

func wrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return models.NewDriverError(models.KindCanceled, op, cerr)
	}
	var de *models.DriverError
	if errors.As(err, &de) {
		return err
	}
	var evalErr *rod.EvalError
	thrown := errors.As(err, &evalErr)
	return models.NewDriverError(scripts.Classify(err.Error(), thrown), op, err)
}

// Driver implements interfaces.Driver on one rod browser
type Driver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cancel   context.CancelFunc
	logger   arbor.ILogger

	mu    sync.Mutex
	page  *rod.Page
	order []proto.TargetTargetID

	closeOnce sync.Once
	closeErr  error
}

func (d *Driver) current(ctx context.Context) *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page.Context(ctx)
}

func (d *Driver) eval(ctx context.Context, op string, ref interfaces.RemoteRef, js string, args ...any) (gson.JSON, error) {
	el, err := element(op, ref)
	if err != nil {
		return gson.JSON{}, err
	}
	res, err := el.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, wrapError(ctx, op, err)
	}
	return res.Value, nil
}

func (d *Driver) FindElements(ctx context.Context, scope interfaces.RemoteRef, loc models.Locator) ([]interfaces.RemoteRef, error) {
	if err := loc.Validate(); err != nil {
		return nil, models.NewDriverError(models.KindInvalidLocator, "find", err)
	}
	opts := rod.Eval(scripts.Find, string(loc.Strategy), loc.Value)
	if scope != nil {
		el, err := element("find", scope)
		if err != nil {
			return nil, err
		}
		opts = opts.This(el.Object)
	}
	els, err := d.current(ctx).ElementsByJS(opts)
	if err != nil {
		return nil, wrapError(ctx, "find", err)
	}
	refs := make([]interfaces.RemoteRef, 0, len(els))
	for _, el := range els {
		refs = append(refs, elementRef{el: el})
	}
	return refs, nil
}

// ReleaseRefs frees the remote objects behind refs, ignoring failures
func (d *Driver) ReleaseRefs(ctx context.Context, refs ...interfaces.RemoteRef) {
	for _, ref := range refs {
		if r, ok := ref.(elementRef); ok && r.el != nil {
			_ = r.el.Context(ctx).Release()
		}
	}
}

func (d *Driver) Text(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	v, err := d.eval(ctx, "text", ref, scripts.Text)
	return v.Str(), err
}

func (d *Driver) Attribute(ctx context.Context, ref interfaces.RemoteRef, name string) (string, bool, error) {
	v, err := d.eval(ctx, "attribute", ref, scripts.Attribute, name)
	if err != nil {
		return "", false, err
	}
	return v.Get("value").Str(), v.Get("present").Bool(), nil
}

func (d *Driver) Property(ctx context.Context, ref interfaces.RemoteRef, name string) (string, error) {
	v, err := d.eval(ctx, "property", ref, scripts.Property, name)
	return v.Str(), err
}

func (d *Driver) CSSValue(ctx context.Context, ref interfaces.RemoteRef, property string) (string, error) {
	v, err := d.eval(ctx, "css value", ref, scripts.CSSValue, property)
	return v.Str(), err
}

func (d *Driver) TagName(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	v, err := d.eval(ctx, "tag name", ref, scripts.TagName)
	return v.Str(), err
}

func rectOf(v gson.JSON) models.Rect {
	return models.Rect{
		X:      v.Get("x").Num(),
		Y:      v.Get("y").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}
}

func (d *Driver) Rect(ctx context.Context, ref interfaces.RemoteRef) (models.Rect, error) {
	v, err := d.eval(ctx, "rect", ref, scripts.Rect)
	if err != nil {
		return models.Rect{}, err
	}
	return rectOf(v), nil
}

func (d *Driver) IsDisplayed(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	v, err := d.eval(ctx, "is displayed", ref, scripts.IsDisplayed)
	return v.Bool(), err
}

func (d *Driver) IsEnabled(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	v, err := d.eval(ctx, "is enabled", ref, scripts.IsEnabled)
	return v.Bool(), err
}

func (d *Driver) IsSelected(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	v, err := d.eval(ctx, "is selected", ref, scripts.IsSelected)
	return v.Bool(), err
}

// centre scrolls ref into view and returns its viewport midpoint
func (d *Driver) centre(ctx context.Context, op string, ref interfaces.RemoteRef) (models.Point, error) {
	if _, err := d.eval(ctx, op, ref, scripts.ScrollIntoView); err != nil {
		return models.Point{}, err
	}
	r, err := d.Rect(ctx, ref)
	if err != nil {
		return models.Point{}, err
	}
	if r.Empty() {
		return models.Point{}, models.NewDriverError(models.KindNotInteractable, op, fmt.Errorf("element has no size"))
	}
	return r.Center(), nil
}

func mouse(p *rod.Page, typ proto.InputDispatchMouseEventType, at models.Point, clicks int) error {
	ev := proto.InputDispatchMouseEvent{Type: typ, X: at.X, Y: at.Y}
	if typ != proto.InputDispatchMouseEventTypeMouseMoved || clicks > 0 {
		ev.Button = proto.InputMouseButtonLeft
		ev.ClickCount = clicks
	}
	return ev.Call(p)
}

func click(p *rod.Page, at models.Point, clicks int) error {
	if err := mouse(p, proto.InputDispatchMouseEventTypeMouseMoved, at, 0); err != nil {
		return err
	}
	if err := mouse(p, proto.InputDispatchMouseEventTypeMousePressed, at, clicks); err != nil {
		return err
	}
	return mouse(p, proto.InputDispatchMouseEventTypeMouseReleased, at, clicks)
}

func (d *Driver) Click(ctx context.Context, ref interfaces.RemoteRef) error {
	at, err := d.centre(ctx, "click", ref)
	if err != nil {
		return err
	}
	return wrapError(ctx, "click", click(d.current(ctx), at, 1))
}

func (d *Driver) DoubleClick(ctx context.Context, ref interfaces.RemoteRef) error {
	at, err := d.centre(ctx, "double click", ref)
	if err != nil {
		return err
	}
	p := d.current(ctx)
	if err := click(p, at, 1); err != nil {
		return wrapError(ctx, "double click", err)
	}
	return wrapError(ctx, "double click", click(p, at, 2))
}

func (d *Driver) Hover(ctx context.Context, ref interfaces.RemoteRef, offset models.Point) error {
	at, err := d.centre(ctx, "hover", ref)
	if err != nil {
		return err
	}
	at = models.Point{X: at.X + offset.X, Y: at.Y + offset.Y}
	return wrapError(ctx, "hover", mouse(d.current(ctx), proto.InputDispatchMouseEventTypeMouseMoved, at, 0))
}

func (d *Driver) DragTo(ctx context.Context, src, dst interfaces.RemoteRef) error {
	from, err := d.centre(ctx, "drag", src)
	if err != nil {
		return err
	}
	p := d.current(ctx)
	if err := mouse(p, proto.InputDispatchMouseEventTypeMouseMoved, from, 0); err != nil {
		return wrapError(ctx, "drag", err)
	}
	if err := mouse(p, proto.InputDispatchMouseEventTypeMousePressed, from, 1); err != nil {
		return wrapError(ctx, "drag", err)
	}
	to, err := d.centre(ctx, "drag", dst)
	if err != nil {
		return err
	}
	if err := (proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseMoved,
		X:      to.X,
		Y:      to.Y,
		Button: proto.InputMouseButtonLeft,
	}).Call(p); err != nil {
		return wrapError(ctx, "drag", err)
	}
	return wrapError(ctx, "drag", mouse(p, proto.InputDispatchMouseEventTypeMouseReleased, to, 1))
}

func (d *Driver) Clear(ctx context.Context, ref interfaces.RemoteRef) error {
	_, err := d.eval(ctx, "clear", ref, scripts.Clear)
	return err
}

// SendKeys inserts text at the focused element; each "\n" is sent as an Enter key press
func (d *Driver) SendKeys(ctx context.Context, ref interfaces.RemoteRef, text string) error {
	if _, err := d.eval(ctx, "send keys", ref, scripts.Focus); err != nil {
		return err
	}
	p := d.current(ctx)
	for i, part := range strings.Split(text, "\n") {
		if i > 0 {
			if err := pressEnter(p); err != nil {
				return wrapError(ctx, "send keys", err)
			}
		}
		if part == "" {
			continue
		}
		if err := (proto.InputInsertText{Text: part}).Call(p); err != nil {
			return wrapError(ctx, "send keys", err)
		}
	}
	return nil
}

func pressEnter(p *rod.Page) error {
	down := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyDown,
		Key:                   "Enter",
		Code:                  "Enter",
		Text:                  "\r",
		WindowsVirtualKeyCode: 13,
	}
	if err := down.Call(p); err != nil {
		return err
	}
	up := down
	up.Type = proto.InputDispatchKeyEventTypeKeyUp
	up.Text = ""
	return up.Call(p)
}

func (d *Driver) Submit(ctx context.Context, ref interfaces.RemoteRef) error {
	_, err := d.eval(ctx, "submit", ref, scripts.Submit)
	return err
}

func (d *Driver) ScrollIntoView(ctx context.Context, ref interfaces.RemoteRef) error {
	_, err := d.eval(ctx, "scroll into view", ref, scripts.ScrollIntoView)
	return err
}

func (d *Driver) ElementScreenshot(ctx context.Context, ref interfaces.RemoteRef) ([]byte, error) {
	el, err := element("element screenshot", ref)
	if err != nil {
		return nil, err
	}
	png, err := el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	return png, wrapError(ctx, "element screenshot", err)
}

func scriptArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if ref, ok := a.(interfaces.RemoteRef); ok {
			el, err := element("argument", ref)
			if err != nil {
				return nil, err
			}
			out[i] = el.Object
			continue
		}
		out[i] = a
	}
	return out, nil
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	jsArgs, err := scriptArgs(args)
	if err != nil {
		return nil, err
	}
	res, err := d.current(ctx).Evaluate(rod.Eval(scripts.Function(script), jsArgs...))
	if err != nil {
		return nil, wrapError(ctx, "execute script", err)
	}
	return res.Value.Val(), nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.current(ctx)
	if err := p.Navigate(url); err != nil {
		return wrapError(ctx, "navigate", err)
	}
	return wrapError(ctx, "navigate", p.WaitLoad())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.current(ctx).Info()
	if err != nil {
		return "", wrapError(ctx, "current url", err)
	}
	return info.URL, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	info, err := d.current(ctx).Info()
	if err != nil {
		return "", wrapError(ctx, "title", err)
	}
	return info.Title, nil
}

func (d *Driver) Back(ctx context.Context) error {
	return wrapError(ctx, "back", d.current(ctx).NavigateBack())
}

func (d *Driver) Refresh(ctx context.Context) error {
	return wrapError(ctx, "refresh", d.current(ctx).Reload())
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := d.current(ctx).Screenshot(false, nil)
	return png, wrapError(ctx, "screenshot", err)
}

// WindowHandles lists open pages, oldest first
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	pages, err := d.browser.Context(ctx).Pages()
	if err != nil {
		return nil, wrapError(ctx, "window handles", err)
	}

	live := make(map[proto.TargetTargetID]bool, len(pages))
	for _, p := range pages {
		live[p.TargetID] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.order[:0]
	seen := make(map[proto.TargetTargetID]bool, len(pages))
	for _, id := range d.order {
		if live[id] {
			kept = append(kept, id)
			seen[id] = true
		}
	}
	// rod lists the newest page first
	for i := len(pages) - 1; i >= 0; i-- {
		if id := pages[i].TargetID; !seen[id] {
			kept = append(kept, id)
			seen[id] = true
		}
	}
	d.order = kept

	handles := make([]string, len(kept))
	for i, id := range kept {
		handles[i] = string(id)
	}
	return handles, nil
}

func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	p, err := d.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(handle))
	if err != nil {
		return wrapError(ctx, "switch window", err)
	}
	if _, err := p.Activate(); err != nil {
		return wrapError(ctx, "switch window", err)
	}
	d.mu.Lock()
	// keep the browser-lifetime context; callers pass theirs per call
	d.page = p.Context(d.browser.GetContext())
	d.mu.Unlock()
	return nil
}

func (d *Driver) DeleteAllCookies(ctx context.Context) error {
	return wrapError(ctx, "delete cookies", proto.NetworkClearBrowserCookies{}.Call(d.current(ctx)))
}

func (d *Driver) ActiveElement(ctx context.Context) (interfaces.RemoteRef, error) {
	p := d.current(ctx)
	obj, err := p.Evaluate(rod.Eval(scripts.ActiveElement).ByObject())
	if err != nil {
		return nil, wrapError(ctx, "active element", err)
	}
	if obj.ObjectID == "" || obj.Subtype != proto.RuntimeRemoteObjectSubtypeNode {
		return nil, models.NewDriverError(models.KindNotFound, "active element", fmt.Errorf("no focused element"))
	}
	el, err := p.ElementFromObject(obj)
	if err != nil {
		return nil, wrapError(ctx, "active element", err)
	}
	return elementRef{el: el}, nil
}

// Close shuts the browser and removes its profile directory
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.browser.Close()
		d.cancel()
		if d.launcher != nil {
			d.launcher.Kill()
			d.launcher.Cleanup()
		}
		d.logger.Debug().Err(d.closeErr).Msg("Rod browser closed")
	})
	return d.closeErr
}

var _ interfaces.Driver = (*Driver)(nil)
