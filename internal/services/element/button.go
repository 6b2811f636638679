package element

import "context"

// Button is a clickable control
type Button struct {
	*Handle
}

func NewButton(h *Handle) *Button {
	return &Button{Handle: h}
}

// IsEnabled also honours aria-disabled, which styled buttons often use instead of disabled
func (b *Button) IsEnabled(ctx context.Context) bool {
	if !b.Handle.IsEnabled(ctx) {
		return false
	}
	disabled, err := b.IsDisabled(ctx)
	return err == nil && !disabled
}
