package element

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pagekit/internal/drivers/fake"
	"github.com/ternarybob/pagekit/internal/models"
)

func addSelect(d *fake.Driver, id string, multiple bool, options ...[2]string) []*fake.Element {
	sel := fake.NewElement("select")
	if multiple {
		sel.Attrs["multiple"] = ""
	}
	d.Add(sel, models.ByID(id))
	var out []*fake.Element
	for _, o := range options {
		opt := fake.NewElement("option")
		opt.Text = o[0]
		opt.Attrs["value"] = o[1]
		out = append(out, d.AddChild(sel, opt))
	}
	return out
}

func TestDropdown_SelectByTextValueIndex(t *testing.T) {
	d := fake.New()
	opts := addSelect(d, "country", false,
		[2]string{"Australia", "au"},
		[2]string{"New Zealand", "nz"},
		[2]string{"Japan", "jp"},
	)
	opts[0].Selected = true
	f, _ := newTestFactory(t, d)
	dd := NewDropdown(f.Locate(models.ByID("country")))
	ctx := context.Background()

	texts, err := dd.OptionTexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Australia", "New Zealand", "Japan"}, texts)

	require.NoError(t, dd.SelectByText(ctx, "Japan"))
	got, err := dd.SelectedValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jp", got)

	require.NoError(t, dd.SelectByValue(ctx, "nz"))
	text, err := dd.SelectedText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New Zealand", text)

	// indexes are 0-based
	require.NoError(t, dd.SelectByIndex(ctx, 0))
	sel, err := dd.Selected(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Index)
	assert.Equal(t, "Australia", sel.Text)

	all, err := dd.AllSelected(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDropdown_MissingOption(t *testing.T) {
	d := fake.New()
	addSelect(d, "size", false, [2]string{"Small", "s"})
	f, _ := newTestFactory(t, d)
	dd := NewDropdown(f.Locate(models.ByID("size")))
	ctx := context.Background()

	err := dd.SelectByText(ctx, "Huge")
	require.ErrorIs(t, err, ErrOptionNotFound)

	err = dd.SelectByIndex(ctx, 1)
	require.ErrorIs(t, err, ErrOptionNotFound)

	ok, err := dd.HasOption(ctx, "Small")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDropdown_MultiSelect(t *testing.T) {
	d := fake.New()
	addSelect(d, "tags", true,
		[2]string{"go", "go"},
		[2]string{"rust", "rust"},
		[2]string{"zig", "zig"},
	)
	f, _ := newTestFactory(t, d)
	dd := NewDropdown(f.Locate(models.ByID("tags")))
	ctx := context.Background()

	multi, err := dd.IsMultiple(ctx)
	require.NoError(t, err)
	assert.True(t, multi)

	require.NoError(t, dd.SelectByValue(ctx, "go"))
	require.NoError(t, dd.SelectByValue(ctx, "zig"))

	all, err := dd.AllSelected(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "go", all[0].Value)
	assert.Equal(t, "zig", all[1].Value)

	require.NoError(t, dd.DeselectAll(ctx))
	all, err = dd.AllSelected(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDropdown_DeselectAllNeedsMultiple(t *testing.T) {
	d := fake.New()
	addSelect(d, "single", false, [2]string{"a", "a"})
	f, _ := newTestFactory(t, d)

	err := NewDropdown(f.Locate(models.ByID("single"))).DeselectAll(context.Background())
	assert.Error(t, err)
}

func TestCheckbox_SetChecked(t *testing.T) {
	d := fake.New()
	box := fake.NewElement("input")
	box.Attrs["type"] = "checkbox"
	d.Add(box, models.ByID("terms"))
	f, _ := newTestFactory(t, d)
	cb := NewCheckbox(f.Locate(models.ByID("terms")))
	ctx := context.Background()

	require.NoError(t, cb.Check(ctx))
	require.NoError(t, cb.Check(ctx))
	checked, err := cb.IsChecked(ctx)
	require.NoError(t, err)
	assert.True(t, checked)
	assert.Equal(t, 1, d.ClickCount(box), "Check on a checked box must not click")

	require.NoError(t, cb.Toggle(ctx))
	checked, err = cb.IsChecked(ctx)
	require.NoError(t, err)
	assert.False(t, checked)

	require.NoError(t, cb.Uncheck(ctx))
	assert.Equal(t, 2, d.ClickCount(box))
}

func TestInput_Operations(t *testing.T) {
	d := fake.New()
	el := fake.NewElement("input")
	el.Attrs["placeholder"] = "Search"
	d.Add(el, models.ByID("q"))
	ro := fake.NewElement("input")
	ro.Attrs["readonly"] = ""
	d.Add(ro, models.ByID("locked"))
	f, _ := newTestFactory(t, d)
	in := NewInput(f.Locate(models.ByID("q")))
	ctx := context.Background()

	empty, err := in.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	ph, err := in.Placeholder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Search", ph)

	require.NoError(t, in.TypeVerified(ctx, "go"))
	require.NoError(t, in.Append(ctx, "lang"))
	assert.Equal(t, "golang", d.Value(el))

	require.NoError(t, in.TypeAndSubmit(ctx, "chromedp"))
	assert.Equal(t, "chromedp", d.Value(el))
	assert.Equal(t, 1, el.Submits)

	require.NoError(t, in.SetValueJS(ctx, "scripted"))
	assert.Equal(t, "scripted", d.Value(el))

	locked := NewInput(f.Locate(models.ByID("locked")))
	readOnly, err := locked.IsReadOnly(ctx)
	require.NoError(t, err)
	assert.True(t, readOnly)
	assert.Error(t, locked.Clear(ctx))
}

func TestButton_AriaDisabled(t *testing.T) {
	d := fake.New()
	el := fake.NewElement("button")
	el.Attrs["aria-disabled"] = "true"
	d.Add(el, models.ByID("go"))
	f, _ := newTestFactory(t, d)
	btn := NewButton(f.Locate(models.ByID("go")))
	ctx := context.Background()

	assert.True(t, btn.Handle.IsEnabled(ctx))
	assert.False(t, btn.IsEnabled(ctx))

	require.NoError(t, btn.JSClick(ctx))
	assert.Equal(t, 1, d.ClickCount(el))
}

func TestLink_Href(t *testing.T) {
	d := fake.New()
	ext := fake.NewElement("a")
	ext.Props["href"] = "https://example.org/docs"
	ext.Attrs["target"] = "_blank"
	d.Add(ext, models.ByLinkText("Docs"))
	js := fake.NewElement("a")
	js.Attrs["href"] = "javascript:void(0)"
	d.Add(js, models.ByLinkText("Menu"))
	f, _ := newTestFactory(t, d)
	ctx := context.Background()

	docs := NewLink(f.Locate(models.ByLinkText("Docs")))
	external, err := docs.IsExternal(ctx, "https://app.example.com/home")
	require.NoError(t, err)
	assert.True(t, external)
	newTab, err := docs.OpensInNewTab(ctx)
	require.NoError(t, err)
	assert.True(t, newTab)

	menu := NewLink(f.Locate(models.ByLinkText("Menu")))
	href, err := menu.Href(ctx)
	require.NoError(t, err)
	assert.Equal(t, "javascript:void(0)", href)
	valid, err := menu.IsValid(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestLabel_TextAndAssociation(t *testing.T) {
	d := fake.New()
	lbl := fake.NewElement("label")
	lbl.Text = "Email Address"
	lbl.Attrs["for"] = "email"
	d.Add(lbl, models.ByCSS("label[for=email]"))
	d.Add(fake.NewElement("input"), models.ByID("email"))
	f, _ := newTestFactory(t, d)
	l := NewLabel(f.Locate(models.ByCSS("label[for=email]")))
	ctx := context.Background()

	ok, err := l.TextContains(ctx, "email", true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.TextContains(ctx, "email", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.TextMatches(ctx, `^Email\s+\w+$`)
	require.NoError(t, err)
	assert.True(t, ok)

	field, err := l.Associated(ctx)
	require.NoError(t, err)
	tag, err := field.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "input", tag)
}

const ordersTable = `
<table id="orders">
  <thead><tr><th>Order</th><th> Status </th><th>Total</th></tr></thead>
  <tbody>
    <tr><td>A-100</td><td>shipped</td><td>$10.00</td></tr>
    <tr><td>A-101</td><td>
        pending
    </td><td>$12.50</td></tr>
  </tbody>
</table>`

func TestParseTable(t *testing.T) {
	data, err := ParseTable(ordersTable)
	require.NoError(t, err)

	assert.Equal(t, []string{"Order", "Status", "Total"}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, 3, data.ColumnCount())

	cell, err := data.Cell(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "pending", cell)

	col, err := data.ColumnIndex("status")
	require.NoError(t, err)
	assert.Equal(t, 1, col)

	row, err := data.FindRow("Order", "A-101")
	require.NoError(t, err)
	assert.Equal(t, 1, row)

	records := data.Records()
	assert.Equal(t, "$10.00", records[0]["Total"])

	_, err = data.Cell(2, 0)
	assert.ErrorIs(t, err, ErrRowNotFound)
	_, err = data.ColumnIndex("Customer")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestParseTable_HeaderInBody(t *testing.T) {
	data, err := ParseTable(`<table><tr><th>Name</th></tr><tr><td>x</td></tr></table>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, data.Headers)
	assert.Equal(t, [][]string{{"x"}}, data.Rows)
	assert.True(t, data.headerInBody)

	_, err = ParseTable(`<div>no table</div>`)
	assert.Error(t, err)
}

func TestTable_ReadsThroughDriver(t *testing.T) {
	d := fake.New()
	tbl := fake.NewElement("table")
	tbl.Props["outerHTML"] = ordersTable
	d.Add(tbl, models.ByID("orders"))
	cell := fake.NewElement("td")
	cell.Text = "shipped"
	d.AddChild(tbl, cell, models.ByCSS("tbody > tr:nth-child(1) > :nth-child(2)"))
	f, _ := newTestFactory(t, d)
	table := NewTable(f.Locate(models.ByID("orders")))
	ctx := context.Background()

	n, err := table.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	status, err := table.CellByHeader(ctx, 0, "Status")
	require.NoError(t, err)
	assert.Equal(t, "shipped", status)

	idx, err := table.RowByColumnText(ctx, "Total", "$12.50")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	h, err := table.CellHandle(ctx, 0, 1)
	require.NoError(t, err)
	require.NoError(t, h.Click(ctx))
	assert.Equal(t, 1, d.ClickCount(cell))

	_, err = table.CellHandle(ctx, 5, 0)
	assert.ErrorIs(t, err, ErrRowNotFound)
}
