// Package fake is an in-memory interfaces.Driver for tests. Elements are registered
// against the locators they answer to, can appear or become visible after a delay,
// and can be marked stale to simulate a re-render.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// PNG is the payload returned by screenshots
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Element is one node of the fake DOM. Fields may be set freely before the
// element is added; afterwards use the Driver setters, which lock.
type Element struct {
	Tag       string
	Text      string
	Attrs     map[string]string
	Props     map[string]string
	CSS       map[string]string
	Displayed bool
	Enabled   bool
	Selected  bool
	Rect      models.Rect

	// OnClick runs after a click is recorded, with the driver lock released
	OnClick func()

	Clicks       int
	DoubleClicks int
	Hovers       int
	Submits      int

	parent    *Element
	children  []*Element
	locators  []models.Locator
	appearAt  time.Time
	visibleAt time.Time
	removed   bool
}

// NewElement returns a displayed, enabled element with the given tag
func NewElement(tag string) *Element {
	return &Element{
		Tag:       tag,
		Attrs:     map[string]string{},
		Props:     map[string]string{},
		CSS:       map[string]string{},
		Displayed: true,
		Enabled:   true,
		Rect:      models.Rect{X: 10, Y: 10, Width: 100, Height: 20},
	}
}

// Ref is the fake RemoteRef
type Ref struct {
	id string
}

func (r *Ref) ID() string { return r.id }

type refState struct {
	el    *Element
	stale bool
}

// Driver is safe for concurrent use
type Driver struct {
	mu sync.Mutex

	elements []*Element
	refs     map[string]*refState
	nextRef  int
	finds    map[string]int
	focused  *Element

	URL        string
	TitleText  string
	ReadyState string
	Pending    bool
	Cookies    int
	Redirects  map[string]string
	history    []string
	windows    []string
	window     string
	probeErr   error
	navErr     error
	closed     bool
	closeCalls int
	scripts    []string

	// ScriptHook, when set, handles scripts before the built-in handlers.
	// Returning handled=false falls through.
	ScriptHook func(script string, args []any) (result any, handled bool, err error)
}

// New returns an empty page at about:blank
func New() *Driver {
	return &Driver{
		refs:       map[string]*refState{},
		finds:      map[string]int{},
		URL:        "about:blank",
		ReadyState: "complete",
		Redirects:  map[string]string{},
		windows:    []string{"window-1"},
		window:     "window-1",
	}
}

var (
	_ interfaces.Driver      = (*Driver)(nil)
	_ interfaces.RefReleaser = (*Driver)(nil)
)

// Add registers el under the given locators. Child elements are added with AddChild.
func (d *Driver) Add(el *Element, locs ...models.Locator) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.locators = append(el.locators, locs...)
	d.elements = append(d.elements, el)
	return el
}

// AddChild registers el as the last child of parent
func (d *Driver) AddChild(parent, el *Element, locs ...models.Locator) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.parent = parent
	el.locators = append(el.locators, locs...)
	parent.children = append(parent.children, el)
	d.elements = append(d.elements, el)
	return el
}

// AppearAfter hides el from finds until delay has passed
func (d *Driver) AppearAfter(el *Element, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.appearAt = time.Now().Add(delay)
}

// ShowAfter reports el as hidden until delay has passed
func (d *Driver) ShowAfter(el *Element, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.visibleAt = time.Now().Add(delay)
}

// MarkStale invalidates every ref handed out for el; later finds return fresh refs
func (d *Driver) MarkStale(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.refs {
		if st.el == el {
			st.stale = true
		}
	}
}

// Remove detaches el so it is neither found nor usable through old refs
func (d *Driver) Remove(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.removed = true
	for _, st := range d.refs {
		if st.el == el {
			st.stale = true
		}
	}
}

func (d *Driver) SetDisplayed(el *Element, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.Displayed = v
}

func (d *Driver) SetEnabled(el *Element, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.Enabled = v
}

func (d *Driver) SetText(el *Element, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.Text = text
}

// FailProbe makes WindowHandles return err, simulating a dead browser
func (d *Driver) FailProbe(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probeErr = err
}

// FailNavigate makes Navigate return err
func (d *Driver) FailNavigate(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navErr = err
}

// OpenWindow adds a window handle
func (d *Driver) OpenWindow(handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = append(d.windows, handle)
}

// FindCalls counts FindElements calls for loc
func (d *Driver) FindCalls(loc models.Locator) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds[loc.String()]
}

// CloseCalls counts Close calls
func (d *Driver) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// Scripts returns every script executed so far
func (d *Driver) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

// ClickCount is the lock-protected read of el.Clicks
func (d *Driver) ClickCount(el *Element) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return el.Clicks
}

// Value returns el's value property
func (d *Driver) Value(el *Element) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return el.Props["value"]
}

func (d *Driver) present(el *Element, now time.Time) bool {
	return !el.removed && (el.appearAt.IsZero() || !now.Before(el.appearAt))
}

func (d *Driver) displayed(el *Element, now time.Time) bool {
	return el.Displayed && (el.visibleAt.IsZero() || !now.Before(el.visibleAt))
}

func (d *Driver) newRef(el *Element) *Ref {
	d.nextRef++
	id := fmt.Sprintf("ref-%d", d.nextRef)
	d.refs[id] = &refState{el: el}
	return &Ref{id: id}
}

// ReleaseRefs forgets refs; using one afterwards reports it stale
func (d *Driver) ReleaseRefs(ctx context.Context, refs ...interfaces.RemoteRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ref := range refs {
		if ref != nil {
			delete(d.refs, ref.ID())
		}
	}
}

// LiveRefs counts references handed out and not yet released
func (d *Driver) LiveRefs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.refs)
}

// lookup resolves a ref; callers hold d.mu
func (d *Driver) lookup(op string, ref interfaces.RemoteRef) (*Element, error) {
	if d.closed {
		return nil, models.NewDriverError(models.KindDisconnected, op, nil)
	}
	if ref == nil {
		return nil, models.NewDriverError(models.KindOther, op, fmt.Errorf("nil element reference"))
	}
	st, ok := d.refs[ref.ID()]
	if !ok || st.stale || st.el.removed {
		return nil, models.NewDriverError(models.KindStale, op, fmt.Errorf("reference %s", ref.ID()))
	}
	return st.el, nil
}

func matches(el *Element, loc models.Locator) bool {
	for _, l := range el.locators {
		if l == loc {
			return true
		}
	}
	return el.Tag != "" && loc.Strategy == models.StrategyTagName && strings.EqualFold(loc.Value, el.Tag)
}

func isDescendant(el, ancestor *Element) bool {
	for p := el.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (d *Driver) FindElements(ctx context.Context, scope interfaces.RemoteRef, loc models.Locator) ([]interfaces.RemoteRef, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, models.NewDriverError(models.KindDisconnected, "find", nil)
	}
	d.finds[loc.String()]++
	now := time.Now()

	var root *Element
	if scope != nil {
		el, err := d.lookup("find", scope)
		if err != nil {
			return nil, err
		}
		root = el
		if rel := d.relative(root, loc, now); rel != nil {
			return []interfaces.RemoteRef{d.newRef(rel)}, nil
		}
	}

	var out []interfaces.RemoteRef
	for _, el := range d.elements {
		if !d.present(el, now) || !matches(el, loc) {
			continue
		}
		if root != nil && !isDescendant(el, root) {
			continue
		}
		out = append(out, d.newRef(el))
	}
	return out, nil
}

// relative handles the xpath axes used for parent and sibling lookups
func (d *Driver) relative(el *Element, loc models.Locator, now time.Time) *Element {
	if loc.Strategy != models.StrategyXPath {
		return nil
	}
	switch {
	case loc.Value == "..":
		if el.parent != nil && d.present(el.parent, now) {
			return el.parent
		}
	case strings.HasPrefix(loc.Value, "following-sibling::"):
		tag := strings.TrimSuffix(strings.TrimPrefix(loc.Value, "following-sibling::"), "[1]")
		if el.parent == nil {
			return nil
		}
		seen := false
		for _, sib := range el.parent.children {
			if sib == el {
				seen = true
				continue
			}
			if seen && d.present(sib, now) && (tag == "*" || strings.EqualFold(sib.Tag, tag)) {
				return sib
			}
		}
	}
	return nil
}

func (d *Driver) Text(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("text", ref)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (d *Driver) Attribute(ctx context.Context, ref interfaces.RemoteRef, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("attribute", ref)
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

func (d *Driver) Property(ctx context.Context, ref interfaces.RemoteRef, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("property", ref)
	if err != nil {
		return "", err
	}
	switch name {
	case "checked", "selected":
		return fmt.Sprint(el.Selected), nil
	case "textContent", "innerText":
		return el.Text, nil
	}
	return el.Props[name], nil
}

func (d *Driver) CSSValue(ctx context.Context, ref interfaces.RemoteRef, property string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("css", ref)
	if err != nil {
		return "", err
	}
	return el.CSS[property], nil
}

func (d *Driver) TagName(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("tag", ref)
	if err != nil {
		return "", err
	}
	return strings.ToLower(el.Tag), nil
}

func (d *Driver) Rect(ctx context.Context, ref interfaces.RemoteRef) (models.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("rect", ref)
	if err != nil {
		return models.Rect{}, err
	}
	return el.Rect, nil
}

func (d *Driver) IsDisplayed(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("displayed", ref)
	if err != nil {
		return false, err
	}
	return d.displayed(el, time.Now()), nil
}

func (d *Driver) IsEnabled(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("enabled", ref)
	if err != nil {
		return false, err
	}
	return el.Enabled, nil
}

func (d *Driver) IsSelected(ctx context.Context, ref interfaces.RemoteRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("selected", ref)
	if err != nil {
		return false, err
	}
	return el.Selected, nil
}

func (d *Driver) Click(ctx context.Context, ref interfaces.RemoteRef) error {
	d.mu.Lock()
	el, err := d.lookup("click", ref)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if !d.displayed(el, time.Now()) {
		d.mu.Unlock()
		return models.NewDriverError(models.KindNotInteractable, "click", nil)
	}
	d.clickLocked(el)
	hook := el.OnClick
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (d *Driver) clickLocked(el *Element) {
	el.Clicks++
	d.focused = el
	switch {
	case strings.EqualFold(el.Tag, "option"):
		if el.parent != nil {
			if _, multi := el.parent.Attrs["multiple"]; multi {
				el.Selected = !el.Selected
				return
			}
			for _, sib := range el.parent.children {
				sib.Selected = false
			}
		}
		el.Selected = true
	case strings.EqualFold(el.Tag, "input") && (el.Attrs["type"] == "checkbox" || el.Attrs["type"] == "radio"):
		if el.Attrs["type"] == "radio" {
			el.Selected = true
		} else {
			el.Selected = !el.Selected
		}
	}
}

func (d *Driver) DoubleClick(ctx context.Context, ref interfaces.RemoteRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("double click", ref)
	if err != nil {
		return err
	}
	el.DoubleClicks++
	return nil
}

func (d *Driver) Hover(ctx context.Context, ref interfaces.RemoteRef, offset models.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("hover", ref)
	if err != nil {
		return err
	}
	el.Hovers++
	return nil
}

func (d *Driver) DragTo(ctx context.Context, src, dst interfaces.RemoteRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	from, err := d.lookup("drag", src)
	if err != nil {
		return err
	}
	to, err := d.lookup("drop", dst)
	if err != nil {
		return err
	}
	if from.parent != nil {
		kept := from.parent.children[:0]
		for _, c := range from.parent.children {
			if c != from {
				kept = append(kept, c)
			}
		}
		from.parent.children = kept
	}
	from.parent = to
	to.children = append(to.children, from)
	return nil
}

func (d *Driver) Clear(ctx context.Context, ref interfaces.RemoteRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("clear", ref)
	if err != nil {
		return err
	}
	if _, ro := el.Attrs["readonly"]; ro {
		return models.NewDriverError(models.KindNotInteractable, "clear", fmt.Errorf("element is read-only"))
	}
	el.Props["value"] = ""
	return nil
}

func (d *Driver) SendKeys(ctx context.Context, ref interfaces.RemoteRef, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("send keys", ref)
	if err != nil {
		return err
	}
	d.focused = el
	for _, r := range text {
		switch r {
		case '\n', '\r', '\t':
			if r != '\t' {
				el.Submits++
			}
		default:
			el.Props["value"] += string(r)
		}
	}
	return nil
}

func (d *Driver) Submit(ctx context.Context, ref interfaces.RemoteRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup("submit", ref)
	if err != nil {
		return err
	}
	el.Submits++
	return nil
}

func (d *Driver) ScrollIntoView(ctx context.Context, ref interfaces.RemoteRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.lookup("scroll", ref)
	return err
}

func (d *Driver) ElementScreenshot(ctx context.Context, ref interfaces.RemoteRef) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookup("element screenshot", ref); err != nil {
		return nil, err
	}
	return append([]byte(nil), PNG...), nil
}

// ExecuteScript understands the handful of scripts the core issues: readyState,
// pending-request checks, location assignment, element click and value setting.
// Anything else returns nil unless ScriptHook handles it.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	d.mu.Lock()
	hook := d.ScriptHook
	d.scripts = append(d.scripts, script)
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return nil, models.NewDriverError(models.KindDisconnected, "script", nil)
	}
	if hook != nil {
		if res, handled, err := hook(script, args); handled {
			return res, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case strings.Contains(script, "document.readyState"):
		return d.ReadyState, nil
	case strings.Contains(script, "jQuery"):
		return !d.Pending, nil
	case strings.Contains(script, "document.activeElement"):
		if len(args) > 0 {
			if ref, ok := args[0].(interfaces.RemoteRef); ok {
				el, err := d.lookup("active element", ref)
				if err != nil {
					return nil, err
				}
				return el == d.focused, nil
			}
		}
		return false, nil
	case strings.Contains(script, "window.location.href"):
		if len(args) > 0 {
			if u, ok := args[0].(string); ok {
				d.navigateLocked(u)
			}
		}
		return nil, nil
	case strings.Contains(script, ".selected ="):
		if len(args) > 1 {
			ref, ok := args[0].(interfaces.RemoteRef)
			want, _ := args[1].(bool)
			if ok {
				el, err := d.lookup("script select", ref)
				if err != nil {
					return nil, err
				}
				if want && el.parent != nil {
					if _, multi := el.parent.Attrs["multiple"]; !multi {
						for _, sib := range el.parent.children {
							sib.Selected = false
						}
					}
				}
				el.Selected = want
			}
		}
		return nil, nil
	case strings.Contains(script, ".click()"):
		if len(args) > 0 {
			if ref, ok := args[0].(interfaces.RemoteRef); ok {
				el, err := d.lookup("script click", ref)
				if err != nil {
					return nil, err
				}
				d.clickLocked(el)
			}
		}
		return nil, nil
	case strings.Contains(script, ".value ="):
		if len(args) > 1 {
			if ref, ok := args[0].(interfaces.RemoteRef); ok {
				el, err := d.lookup("script value", ref)
				if err != nil {
					return nil, err
				}
				el.Props["value"] = fmt.Sprint(args[1])
			}
		}
		return nil, nil
	}
	return nil, nil
}

func (d *Driver) navigateLocked(url string) {
	if d.URL != "" && d.URL != "about:blank" {
		d.history = append(d.history, d.URL)
	}
	if to, ok := d.Redirects[url]; ok {
		url = to
	}
	d.URL = url
	// a navigation replaces the document, so every outstanding ref goes stale
	for _, st := range d.refs {
		st.stale = true
	}
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return models.NewDriverError(models.KindDisconnected, "navigate", nil)
	}
	if d.navErr != nil {
		return models.NewDriverError(models.KindOther, "navigate", d.navErr)
	}
	d.navigateLocked(url)
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", models.NewDriverError(models.KindDisconnected, "current url", nil)
	}
	return d.URL, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", models.NewDriverError(models.KindDisconnected, "title", nil)
	}
	return d.TitleText, nil
}

func (d *Driver) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.history); n > 0 {
		d.URL = d.history[n-1]
		d.history = d.history[:n-1]
	}
	return nil
}

func (d *Driver) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.refs {
		st.stale = true
	}
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, models.NewDriverError(models.KindDisconnected, "screenshot", nil)
	}
	return append([]byte(nil), PNG...), nil
}

func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, models.NewDriverError(models.KindDisconnected, "window handles", nil)
	}
	if d.probeErr != nil {
		return nil, models.NewDriverError(models.KindDisconnected, "window handles", d.probeErr)
	}
	return append([]string(nil), d.windows...), nil
}

func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		if w == handle {
			d.window = handle
			return nil
		}
	}
	return models.NewDriverError(models.KindNotFound, "switch window", fmt.Errorf("no window %q", handle))
}

// CurrentWindow returns the active window handle
func (d *Driver) CurrentWindow() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

func (d *Driver) DeleteAllCookies(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Cookies = 0
	return nil
}

func (d *Driver) ActiveElement(ctx context.Context) (interfaces.RemoteRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focused == nil {
		return nil, models.NewDriverError(models.KindNotFound, "active element", nil)
	}
	return d.newRef(d.focused), nil
}

// SameElement reports whether two refs point at the same fake element
func (d *Driver) SameElement(a, b interfaces.RemoteRef) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sa, oka := d.refs[a.ID()]
	sb, okb := d.refs[b.ID()]
	return oka && okb && sa.el == sb.el
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	d.closed = true
	return nil
}
