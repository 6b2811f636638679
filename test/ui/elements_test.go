package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/element"
	"github.com/ternarybob/pagekit/internal/services/page"
)

type loginPage struct {
	page.Base
	username *element.Handle
	password *element.Handle
	submit   *element.Handle
}

func (p *loginPage) Path() string { return "/login" }

func (p *loginPage) InitLocators() {
	p.username = p.Named("login", "username")
	p.password = p.Named("login", "password")
	p.submit = p.Named("login", "submit")
}

func (p *loginPage) IsPageLoaded(ctx context.Context) bool {
	return p.username.IsDisplayed(ctx) && p.submit.IsEnabled(ctx)
}

func TestElements_LoginFlow(t *testing.T) {
	tc := newContext(t)
	p := &loginPage{Base: tc.Base()}
	tc.Open(p)

	input := element.NewInput(p.username)
	placeholder, err := input.Placeholder(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "name", placeholder)

	require.NoError(t, input.TypeVerified(tc.Ctx, "ada"))
	require.NoError(t, p.password.Type(tc.Ctx, "secret"))
	_, err = tc.Screenshot("filled")
	require.NoError(t, err)

	require.NoError(t, p.submit.Click(tc.Ctx))
	require.NoError(t, tc.Named("welcome.heading").WaitText(tc.Ctx, "Hello ada"))

	u, err := tc.Env.Nav.CurrentURL(tc.Ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "/welcome?username=ada")
}

func TestElements_RecoversAfterRerender(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/rerender"))

	counter := tc.Find(models.ByID("counter"))
	for i := 0; i < 3; i++ {
		// each click replaces the button, so the cached reference goes stale
		require.NoError(t, counter.Click(tc.Ctx))
	}
	require.NoError(t, counter.WaitText(tc.Ctx, "3"))
}

func TestElements_FormControls(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/forms"))

	colour := element.NewDropdown(tc.Named("forms.colour"))
	selected, err := colour.SelectedText(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "Green", selected)

	require.NoError(t, colour.SelectByText(tc.Ctx, "Blue"))
	value, err := colour.SelectedValue(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", value)

	require.NoError(t, colour.SelectByIndex(tc.Ctx, 0))
	selected, err = colour.SelectedText(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "Red", selected)

	assert.ErrorIs(t, colour.SelectByText(tc.Ctx, "Purple"), element.ErrOptionNotFound)

	toppings := element.NewDropdown(tc.Named("forms.toppings"))
	require.NoError(t, toppings.SelectByValue(tc.Ctx, "ch"))
	require.NoError(t, toppings.SelectByValue(tc.Ctx, "mu"))
	all, err := toppings.AllSelected(tc.Ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Cheese", all[0].Text)
	assert.Equal(t, "Mushroom", all[1].Text)
	require.NoError(t, toppings.DeselectAll(tc.Ctx))
	all, err = toppings.AllSelected(tc.Ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	agree := element.NewCheckbox(tc.Named("forms.agree"))
	require.NoError(t, agree.Check(tc.Ctx))
	checked, err := agree.IsChecked(tc.Ctx)
	require.NoError(t, err)
	assert.True(t, checked)
	require.NoError(t, agree.Toggle(tc.Ctx))
	checked, err = agree.IsChecked(tc.Ctx)
	require.NoError(t, err)
	assert.False(t, checked)
}

func TestElements_Table(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/forms"))

	people := element.NewTable(tc.Named("forms.people"))
	headers, err := people.Headers(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Role"}, headers)

	rows, err := people.RowCount(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	row, err := people.RowByColumnText(tc.Ctx, "Name", "Grace")
	require.NoError(t, err)
	role, err := people.CellByHeader(tc.Ctx, row, "Role")
	require.NoError(t, err)
	assert.Equal(t, "Admiral", role)

	cell, err := people.CellHandle(tc.Ctx, 0, 1)
	require.NoError(t, err)
	text, err := cell.Text(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", text)
}
