package element

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// ErrOptionNotFound is returned when no option matches a selection request
var ErrOptionNotFound = errors.New("option not found")

const setOptionScript = `
var opt = arguments[0];
var sel = opt.closest('select');
opt.selected = arguments[1];
if (sel) {
	sel.dispatchEvent(new Event('input', {bubbles: true}));
	sel.dispatchEvent(new Event('change', {bubbles: true}));
}`

var optionLocator = models.ByTagName("option")

// Option is a snapshot of one <option>. Index is 0-based in document order.
type Option struct {
	Index    int
	Text     string
	Value    string
	Selected bool

	handle *Handle
}

// Dropdown is a native <select>. All indexes are 0-based.
type Dropdown struct {
	*Handle
}

func NewDropdown(h *Handle) *Dropdown {
	return &Dropdown{Handle: h}
}

func (d *Dropdown) IsMultiple(ctx context.Context) (bool, error) {
	return d.IsAttributePresent(ctx, "multiple")
}

// Options reads every option of the select
func (d *Dropdown) Options(ctx context.Context) ([]Option, error) {
	children, err := d.Children(ctx, optionLocator)
	if err != nil {
		return nil, err
	}

	out := make([]Option, 0, len(children))
	for i, c := range children {
		text, err := c.Text(ctx)
		if err != nil {
			return nil, err
		}
		value, ok, err := c.Attribute(ctx, "value")
		if err != nil {
			return nil, err
		}
		if !ok {
			value = text
		}
		selected, err := c.IsSelected(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, Option{
			Index:    i,
			Text:     strings.TrimSpace(text),
			Value:    value,
			Selected: selected,
			handle:   c,
		})
	}
	return out, nil
}

func (d *Dropdown) OptionTexts(ctx context.Context) ([]string, error) {
	opts, err := d.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Text
	}
	return out, nil
}

func (d *Dropdown) OptionValues(ctx context.Context) ([]string, error) {
	opts, err := d.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out, nil
}

func (d *Dropdown) OptionCount(ctx context.Context) (int, error) {
	opts, err := d.Options(ctx)
	return len(opts), err
}

func (d *Dropdown) HasOption(ctx context.Context, text string) (bool, error) {
	opts, err := d.Options(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range opts {
		if o.Text == text {
			return true, nil
		}
	}
	return false, nil
}

// Selected returns the first selected option
func (d *Dropdown) Selected(ctx context.Context) (Option, error) {
	all, err := d.AllSelected(ctx)
	if err != nil {
		return Option{}, err
	}
	if len(all) == 0 {
		return Option{}, fmt.Errorf("dropdown %s: %w: nothing selected", d, ErrOptionNotFound)
	}
	return all[0], nil
}

func (d *Dropdown) AllSelected(ctx context.Context) ([]Option, error) {
	opts, err := d.Options(ctx)
	if err != nil {
		return nil, err
	}
	var out []Option
	for _, o := range opts {
		if o.Selected {
			out = append(out, o)
		}
	}
	return out, nil
}

func (d *Dropdown) SelectedText(ctx context.Context) (string, error) {
	o, err := d.Selected(ctx)
	return o.Text, err
}

func (d *Dropdown) SelectedValue(ctx context.Context) (string, error) {
	o, err := d.Selected(ctx)
	return o.Value, err
}

func (d *Dropdown) SelectByText(ctx context.Context, text string) error {
	return d.selectWhere(ctx, fmt.Sprintf("text %q", text), func(o Option) bool { return o.Text == text })
}

func (d *Dropdown) SelectByValue(ctx context.Context, value string) error {
	return d.selectWhere(ctx, fmt.Sprintf("value %q", value), func(o Option) bool { return o.Value == value })
}

// SelectByIndex selects the option at the 0-based index
func (d *Dropdown) SelectByIndex(ctx context.Context, index int) error {
	return d.selectWhere(ctx, fmt.Sprintf("index %d", index), func(o Option) bool { return o.Index == index })
}

// DeselectAll clears a multi-select
func (d *Dropdown) DeselectAll(ctx context.Context) error {
	multi, err := d.IsMultiple(ctx)
	if err != nil {
		return err
	}
	if !multi {
		return fmt.Errorf("dropdown %s: deselect requires a multi-select", d)
	}
	opts, err := d.AllSelected(ctx)
	if err != nil {
		return err
	}
	for _, o := range opts {
		if err := setOption(ctx, o.handle, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dropdown) selectWhere(ctx context.Context, what string, match func(Option) bool) error {
	if err := d.WaitClickable(ctx); err != nil {
		return err
	}
	opts, err := d.Options(ctx)
	if err != nil {
		return err
	}
	for _, o := range opts {
		if !match(o) {
			continue
		}
		if o.Selected {
			return nil
		}
		return setOption(ctx, o.handle, true)
	}
	return fmt.Errorf("dropdown %s: %w: %s", d, ErrOptionNotFound, what)
}

func setOption(ctx context.Context, opt *Handle, selected bool) error {
	return opt.act(ctx, "select option", present, false, func(ctx context.Context, d interfaces.Driver, ref interfaces.RemoteRef) error {
		_, err := d.ExecuteScript(ctx, setOptionScript, ref, selected)
		return err
	})
}
