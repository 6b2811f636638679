package element

import (
	"context"
	"strings"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

const isActiveScript = `return arguments[0] === document.activeElement;`

func (h *Handle) Text(ctx context.Context) (string, error) {
	var out string
	err := h.read(ctx, "text", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.Text(ctx, ref)
		return err
	})
	return out, err
}

// Attribute returns the attribute value and whether it is present
func (h *Handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		out string
		ok  bool
	)
	err := h.read(ctx, "attribute "+name, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, ok, err = d.Attribute(ctx, ref, name)
		return err
	})
	return out, ok, err
}

func (h *Handle) Property(ctx context.Context, name string) (string, error) {
	var out string
	err := h.read(ctx, "property "+name, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.Property(ctx, ref, name)
		return err
	})
	return out, err
}

func (h *Handle) CSSValue(ctx context.Context, property string) (string, error) {
	var out string
	err := h.read(ctx, "css "+property, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.CSSValue(ctx, ref, property)
		return err
	})
	return out, err
}

func (h *Handle) TagName(ctx context.Context) (string, error) {
	var out string
	err := h.read(ctx, "tag name", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.TagName(ctx, ref)
		return err
	})
	return out, err
}

func (h *Handle) Rect(ctx context.Context) (models.Rect, error) {
	var out models.Rect
	err := h.read(ctx, "rect", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.Rect(ctx, ref)
		return err
	})
	return out, err
}

// Value returns the live value property, which tracks typing unlike the value attribute
func (h *Handle) Value(ctx context.Context) (string, error) {
	return h.Property(ctx, "value")
}

func (h *Handle) IsSelected(ctx context.Context) (bool, error) {
	var out bool
	err := h.read(ctx, "selected", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.IsSelected(ctx, ref)
		return err
	})
	return out, err
}

// IsDisplayed reports false on any error, so it can be used directly in guards
func (h *Handle) IsDisplayed(ctx context.Context) bool {
	var out bool
	err := h.read(ctx, "displayed", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.IsDisplayed(ctx, ref)
		return err
	})
	return err == nil && out
}

// IsEnabled reports false on any error, so it can be used directly in guards
func (h *Handle) IsEnabled(ctx context.Context) bool {
	var out bool
	err := h.read(ctx, "enabled", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.IsEnabled(ctx, ref)
		return err
	})
	return err == nil && out
}

// IsDisabled checks both the disabled attribute and aria-disabled="true"
func (h *Handle) IsDisabled(ctx context.Context) (bool, error) {
	if _, ok, err := h.Attribute(ctx, "disabled"); err != nil || ok {
		return ok, err
	}
	aria, _, err := h.Attribute(ctx, "aria-disabled")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(aria, "true"), nil
}

func (h *Handle) IsAttributePresent(ctx context.Context, name string) (bool, error) {
	_, ok, err := h.Attribute(ctx, name)
	return ok, err
}

// HasClass reports whether class is one of the element's classes
func (h *Handle) HasClass(ctx context.Context, class string) (bool, error) {
	classes, _, err := h.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true, nil
		}
	}
	return false, nil
}

// IsActive reports whether the element has focus
func (h *Handle) IsActive(ctx context.Context) (bool, error) {
	var out bool
	err := h.read(ctx, "active", func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		v, err := d.ExecuteScript(ctx, isActiveScript, ref)
		out, _ = v.(bool)
		return err
	})
	return out, err
}

// Present checks once, without waiting, whether the element exists.
// Locator-backed handles re-query; ref-only handles check their reference.
func (h *Handle) Present(ctx context.Context) bool {
	s, err := h.f.source.Current(ctx)
	if err != nil {
		return false
	}
	d := s.Driver()
	if h.hasLocator {
		refs, err := d.FindElements(ctx, nil, h.loc)
		interfaces.Release(ctx, d, refs...)
		return err == nil && len(refs) > 0
	}
	ref, sessionID := h.cache()
	if ref == nil || sessionID != s.ID() {
		return false
	}
	_, err = d.TagName(ctx, ref)
	return err == nil
}

// Screenshot captures the element's box as PNG
func (h *Handle) Screenshot(ctx context.Context) ([]byte, error) {
	var out []byte
	err := h.act(ctx, "screenshot", visible, true, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		var err error
		out, err = d.ElementScreenshot(ctx, ref)
		return err
	})
	return out, err
}

func waitGoneCondition(h *Handle, ref interfaces.RemoteRef) wait.Condition {
	if h.hasLocator {
		return wait.InvisibilityOf(h.loc).WithTimeout(h.timeout)
	}
	return wait.Condition{
		Name:    "invisibility of " + h.String(),
		Kind:    "invisibility",
		Timeout: h.timeout,
		Predicate: func(ctx context.Context, d interfaces.Driver) (bool, error) {
			if ref == nil {
				return true, nil
			}
			shown, err := d.IsDisplayed(ctx, ref)
			if models.IsStale(err) {
				return true, nil
			}
			return !shown, err
		},
	}
}

func containsFold(s, sub string, fold bool) bool {
	if fold {
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	return strings.Contains(s, sub)
}
