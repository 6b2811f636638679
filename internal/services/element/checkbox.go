package element

import "context"

// Checkbox is a two-state input
type Checkbox struct {
	*Handle
}

func NewCheckbox(h *Handle) *Checkbox {
	return &Checkbox{Handle: h}
}

func (c *Checkbox) IsChecked(ctx context.Context) (bool, error) {
	return c.IsSelected(ctx)
}

// SetChecked clicks only when the current state differs from want
func (c *Checkbox) SetChecked(ctx context.Context, want bool) error {
	checked, err := c.IsChecked(ctx)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return c.Click(ctx)
}

func (c *Checkbox) Check(ctx context.Context) error {
	return c.SetChecked(ctx, true)
}

func (c *Checkbox) Uncheck(ctx context.Context) error {
	return c.SetChecked(ctx, false)
}

func (c *Checkbox) Toggle(ctx context.Context) error {
	return c.Click(ctx)
}
