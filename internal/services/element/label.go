package element

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ternarybob/pagekit/internal/models"
)

// Label is a <label> or any text-bearing element checked by content
type Label struct {
	*Handle
}

func NewLabel(h *Handle) *Label {
	return &Label{Handle: h}
}

// For returns the id of the labelled control
func (l *Label) For(ctx context.Context) (string, error) {
	v, _, err := l.Attribute(ctx, "for")
	return v, err
}

// Associated returns a locator-backed handle for the control this label points at
func (l *Label) Associated(ctx context.Context) (*Handle, error) {
	id, err := l.For(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("label %s has no for attribute", l)
	}
	return l.f.Locate(models.ByID(id)), nil
}

func (l *Label) TextContains(ctx context.Context, fragment string, ignoreCase bool) (bool, error) {
	text, err := l.Text(ctx)
	if err != nil {
		return false, err
	}
	return containsFold(text, fragment, ignoreCase), nil
}

func (l *Label) TextMatches(ctx context.Context, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	text, err := l.Text(ctx)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
