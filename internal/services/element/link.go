package element

import (
	"context"
	"net/url"
	"strings"
)

// Link is an anchor
type Link struct {
	*Handle
}

func NewLink(h *Handle) *Link {
	return &Link{Handle: h}
}

// Href returns the resolved href property, falling back to the raw attribute
func (l *Link) Href(ctx context.Context) (string, error) {
	href, err := l.Property(ctx, "href")
	if err != nil || href != "" {
		return href, err
	}
	raw, _, err := l.Attribute(ctx, "href")
	return raw, err
}

func (l *Link) Target(ctx context.Context) (string, error) {
	t, _, err := l.Attribute(ctx, "target")
	return t, err
}

func (l *Link) OpensInNewTab(ctx context.Context) (bool, error) {
	t, err := l.Target(ctx)
	return t == "_blank", err
}

// IsValid reports whether the link points somewhere navigable
func (l *Link) IsValid(ctx context.Context) (bool, error) {
	href, err := l.Href(ctx)
	if err != nil {
		return false, err
	}
	href = strings.TrimSpace(href)
	return href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:"), nil
}

// IsExternal reports whether the link leaves the host of base
func (l *Link) IsExternal(ctx context.Context, base string) (bool, error) {
	href, err := l.Href(ctx)
	if err != nil {
		return false, err
	}
	target, err := url.Parse(href)
	if err != nil {
		return false, err
	}
	origin, err := url.Parse(base)
	if err != nil {
		return false, err
	}
	return target.Host != "" && !strings.EqualFold(target.Host, origin.Host), nil
}
