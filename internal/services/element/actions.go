package element

import (
	"context"
	"fmt"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

const (
	jsClickScript    = `arguments[0].click();`
	jsMouseOver      = `arguments[0].dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));`
	jsSetValueScript = `
var el = arguments[0];
el.value = arguments[1];
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));`
)

// Click waits for the element to be clickable, scrolls it into view and clicks its centre
func (h *Handle) Click(ctx context.Context) error {
	return h.act(ctx, "click", clickable, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.Click(ctx, ref)
	})
}

// ClickWithoutScroll clicks without scrolling first, for sticky headers and overlays
func (h *Handle) ClickWithoutScroll(ctx context.Context) error {
	return h.act(ctx, "click", clickable, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.Click(ctx, ref)
	})
}

func (h *Handle) DoubleClick(ctx context.Context) error {
	return h.act(ctx, "double click", clickable, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.DoubleClick(ctx, ref)
	})
}

// JSClick clicks through the DOM, bypassing pointer hit-testing
func (h *Handle) JSClick(ctx context.Context) error {
	return h.act(ctx, "js click", present, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		_, err := d.ExecuteScript(ctx, jsClickScript, ref)
		return err
	})
}

func (h *Handle) Clear(ctx context.Context) error {
	return h.act(ctx, "clear", visible, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.Clear(ctx, ref)
	})
}

// Type clears the element and sends text
func (h *Handle) Type(ctx context.Context, text string) error {
	return h.act(ctx, "type", visible, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		if err := d.Clear(ctx, ref); err != nil {
			return err
		}
		return d.SendKeys(ctx, ref, text)
	})
}

// SendKeys sends text without clearing first
func (h *Handle) SendKeys(ctx context.Context, text string) error {
	return h.act(ctx, "send keys", visible, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.SendKeys(ctx, ref, text)
	})
}

func (h *Handle) PressEnter(ctx context.Context) error {
	return h.SendKeys(ctx, "\n")
}

func (h *Handle) PressTab(ctx context.Context) error {
	return h.SendKeys(ctx, "\t")
}

func (h *Handle) Submit(ctx context.Context) error {
	return h.act(ctx, "submit", visible, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.Submit(ctx, ref)
	})
}

// SetValueJS assigns value directly and fires input and change events,
// for inputs bound to a framework model that ignores synthetic keys
func (h *Handle) SetValueJS(ctx context.Context, value string) error {
	return h.act(ctx, "set value", present, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		_, err := d.ExecuteScript(ctx, jsSetValueScript, ref, value)
		return err
	})
}

func (h *Handle) Hover(ctx context.Context) error {
	return h.HoverOffset(ctx, models.Point{})
}

// HoverOffset moves the pointer to the element centre shifted by offset
func (h *Handle) HoverOffset(ctx context.Context, offset models.Point) error {
	return h.act(ctx, "hover", visible, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.Hover(ctx, ref, offset)
	})
}

// HoverJS dispatches a mouseover event without moving the pointer
func (h *Handle) HoverJS(ctx context.Context) error {
	return h.act(ctx, "js hover", present, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		_, err := d.ExecuteScript(ctx, jsMouseOver, ref)
		return err
	})
}

// DragTo drags this element onto target
func (h *Handle) DragTo(ctx context.Context, target *Handle) error {
	dst, err := target.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("drag %s: %w", h, err)
	}
	return h.act(ctx, "drag", clickable, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.DragTo(ctx, ref, dst)
	})
}

func (h *Handle) ScrollIntoView(ctx context.Context) error {
	return h.act(ctx, "scroll", present, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		return d.ScrollIntoView(ctx, ref)
	})
}

// WaitVisible blocks until the element is displayed
func (h *Handle) WaitVisible(ctx context.Context) error {
	return h.await(ctx, visible)
}

// WaitClickable blocks until the element is displayed and enabled
func (h *Handle) WaitClickable(ctx context.Context) error {
	return h.await(ctx, clickable)
}

// WaitText blocks until the element's text contains text
func (h *Handle) WaitText(ctx context.Context, text string) error {
	return h.await(ctx, readiness{
		name: fmt.Sprintf("text %q", text),
		kind: "text",
		check: func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) (bool, error) {
			got, err := d.Text(ctx, ref)
			if err != nil {
				return false, err
			}
			return containsFold(got, text, false), nil
		},
	})
}

// WaitGone blocks until the element is hidden, detached or no longer matched
func (h *Handle) WaitGone(ctx context.Context) error {
	s, err := h.f.source.Current(ctx)
	if err != nil {
		return err
	}

	ref, _ := h.cache()
	err = h.f.waiter.AwaitOn(ctx, s.Driver(), waitGoneCondition(h, ref))
	if err != nil {
		return fmt.Errorf("wait gone %s: %w", h, err)
	}
	h.Invalidate()
	return nil
}

func (h *Handle) await(ctx context.Context, ready readiness) error {
	s, err := h.f.source.Current(ctx)
	if err != nil {
		return err
	}
	if _, err := h.bind(ctx, s, ready); err != nil {
		return fmt.Errorf("wait %s: %w", h, err)
	}
	return nil
}
