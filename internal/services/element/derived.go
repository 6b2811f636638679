package element

import (
	"context"
	"fmt"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

// Derived handles are resolved immediately and carry no locator of their own,
// so they cannot be re-resolved once their reference goes stale.

// Parent returns the element's parent node
func (h *Handle) Parent(ctx context.Context) (*Handle, error) {
	return h.relative(ctx, "parent", models.ByXPath(".."))
}

// NextSibling returns the first following sibling with the given tag ("*" for any)
func (h *Handle) NextSibling(ctx context.Context, tag string) (*Handle, error) {
	if tag == "" {
		tag = "*"
	}
	return h.relative(ctx, "next sibling", models.ByXPath("following-sibling::"+tag+"[1]"))
}

func (h *Handle) relative(ctx context.Context, op string, loc models.Locator) (*Handle, error) {
	s, ref, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	found, err := wait.FindFirst(ctx, s.Driver(), ref, loc)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", op, h, err)
	}
	child := h.f.Wrap(found, s.ID())
	child.name = fmt.Sprintf("%s of %s", op, h)
	return child, nil
}

// Child waits for a descendant matching loc and returns it as a ref-only handle
func (h *Handle) Child(ctx context.Context, loc models.Locator) (*Handle, error) {
	s, ref, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	found, err := wait.AwaitValue(ctx, h.f.waiter, s.Driver(), wait.ValueCondition[interfaces.RemoteRef]{
		Name:     fmt.Sprintf("presence of %s within %s", loc, h),
		Kind:     "presence",
		Timeout:  h.timeout,
		Tolerate: []models.ErrorKind{models.KindNotFound},
		Eval: func(ctx context.Context, d interfaces.Driver) (interfaces.RemoteRef, bool, error) {
			r, err := wait.FindFirst(ctx, d, ref, loc)
			if err != nil {
				return nil, false, err
			}
			return r, true, nil
		},
	})
	if err != nil {
		if models.IsStale(err) && !h.hasLocator {
			return nil, h.unrecoverable(err)
		}
		return nil, fmt.Errorf("child %s of %s: %w", loc, h, err)
	}

	child := h.f.Wrap(found, s.ID())
	child.name = fmt.Sprintf("%s within %s", loc, h)
	return child, nil
}

// Children returns every current descendant matching loc without waiting
func (h *Handle) Children(ctx context.Context, loc models.Locator) ([]*Handle, error) {
	s, ref, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.Driver().FindElements(ctx, ref, loc)
	if err != nil {
		return nil, fmt.Errorf("children %s of %s: %w", loc, h, err)
	}
	out := make([]*Handle, 0, len(refs))
	for i, r := range refs {
		child := h.f.Wrap(r, s.ID())
		child.name = fmt.Sprintf("%s[%d] within %s", loc, i, h)
		out = append(out, child)
	}
	return out, nil
}

// HasChild checks once, without waiting, for a descendant matching loc
func (h *Handle) HasChild(ctx context.Context, loc models.Locator) bool {
	s, ref, err := h.session(ctx)
	if err != nil {
		return false
	}
	refs, err := s.Driver().FindElements(ctx, ref, loc)
	interfaces.Release(ctx, s.Driver(), refs...)
	return err == nil && len(refs) > 0
}

// All returns a ref-only handle per current match of loc, without waiting
func (f *Factory) All(ctx context.Context, loc models.Locator) ([]*Handle, error) {
	s, err := f.source.Current(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.Driver().FindElements(ctx, nil, loc)
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", loc, err)
	}
	out := make([]*Handle, 0, len(refs))
	for i, r := range refs {
		h := f.Wrap(r, s.ID())
		h.name = fmt.Sprintf("%s[%d]", loc, i)
		out = append(out, h)
	}
	return out, nil
}
