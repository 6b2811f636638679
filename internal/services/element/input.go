package element

import (
	"context"
	"fmt"
)

// Input is a text field
type Input struct {
	*Handle
}

func NewInput(h *Handle) *Input {
	return &Input{Handle: h}
}

// Append types text after the current value
func (i *Input) Append(ctx context.Context, text string) error {
	return i.SendKeys(ctx, text)
}

// TypeAndSubmit replaces the value and presses enter
func (i *Input) TypeAndSubmit(ctx context.Context, text string) error {
	if err := i.Type(ctx, text); err != nil {
		return err
	}
	return i.PressEnter(ctx)
}

func (i *Input) IsEmpty(ctx context.Context) (bool, error) {
	v, err := i.Value(ctx)
	if err != nil {
		return false, err
	}
	return v == "", nil
}

func (i *Input) IsReadOnly(ctx context.Context) (bool, error) {
	return i.IsAttributePresent(ctx, "readonly")
}

// Placeholder returns the placeholder attribute, empty when absent
func (i *Input) Placeholder(ctx context.Context) (string, error) {
	v, _, err := i.Attribute(ctx, "placeholder")
	return v, err
}

// TypeVerified types text and checks the field kept it, which catches masks and maxlength
func (i *Input) TypeVerified(ctx context.Context, text string) error {
	if err := i.Type(ctx, text); err != nil {
		return err
	}
	got, err := i.Value(ctx)
	if err != nil {
		return err
	}
	if got != text {
		return fmt.Errorf("input %s holds %q after typing %q", i, got, text)
	}
	return nil
}
