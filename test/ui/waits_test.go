package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

func TestWaits_LateElementBecomesVisible(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/slow"))

	late := tc.Named("slow.late")
	assert.False(t, late.Present(tc.Ctx), "not rendered yet")

	require.NoError(t, late.WaitText(tc.Ctx, "ready"))
	text, err := late.Text(tc.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready now", text)

	require.NoError(t, tc.Named("slow.spinner").WaitGone(tc.Ctx))
}

func TestWaits_MissingElementTimesOut(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/login"))

	start := time.Now()
	err := tc.Find(models.ByID("never")).WithTimeout(500 * time.Millisecond).WaitVisible(tc.Ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaits_PageConditions(t *testing.T) {
	tc := newContext(t)
	require.NoError(t, tc.Navigate("/login"))

	b := tc.Base()
	require.NoError(t, b.WaitFor(tc.Ctx, wait.TitleContains("Sign")))
	require.NoError(t, b.WaitFor(tc.Ctx, wait.URLContains("/login")))
	require.NoError(t, b.WaitFor(tc.Ctx, wait.CountAtLeast(models.ByTagName("input"), 2)))

	err := b.WaitFor(tc.Ctx, wait.TitleContains("Nope").WithTimeout(300*time.Millisecond))
	assert.ErrorIs(t, err, models.ErrTimeout)
}
