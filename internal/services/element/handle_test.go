package element

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"pgregory.net/rapid"

	"github.com/ternarybob/pagekit/internal/drivers/fake"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/wait"
)

const testTimeout = 400 * time.Millisecond

func newTestFactory(t *testing.T, d *fake.Driver) (*Factory, *fake.Source) {
	t.Helper()
	src := fake.NewSource(d)
	w := wait.NewWaiter(src, wait.Options{Timeout: testTimeout, Interval: 20 * time.Millisecond}, arbor.NewLogger(), nil)
	return NewFactory(src, w, arbor.NewLogger(), nil), src
}

func TestHandle_ResolveIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := fake.New()
		loc := models.ByID("submit")
		d.Add(fake.NewElement("button"), loc)
		f, _ := newTestFactory(t, d)
		h := f.Locate(loc)

		n := rapid.IntRange(1, 10).Draw(rt, "resolves")
		first, err := h.Resolve(context.Background())
		require.NoError(rt, err)
		for i := 1; i < n; i++ {
			ref, err := h.Resolve(context.Background())
			require.NoError(rt, err)
			assert.Same(rt, first, ref)
		}
		assert.Equal(rt, 1, d.FindCalls(loc), "valid cached reference must not be re-queried")
	})
}

func TestHandle_ReResolvesOnceAfterStale(t *testing.T) {
	d := fake.New()
	loc := models.ByCSS("#save")
	el := d.Add(fake.NewElement("button"), loc)
	f, _ := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	first, err := h.Resolve(ctx)
	require.NoError(t, err)

	d.MarkStale(el)

	second, err := h.Resolve(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.True(t, d.SameElement(first, second))
	assert.Equal(t, 2, d.FindCalls(loc))

	require.NoError(t, h.Click(ctx))
	assert.Equal(t, 1, d.ClickCount(el))
}

func TestHandle_ClickRecoversFromRerender(t *testing.T) {
	d := fake.New()
	loc := models.ByID("row-action")
	el := d.Add(fake.NewElement("a"), loc)
	f, _ := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	_, err := h.Resolve(ctx)
	require.NoError(t, err)

	// the page re-renders the same logical element between resolve and click
	d.MarkStale(el)
	require.NoError(t, h.Click(ctx))
	assert.Equal(t, 1, d.ClickCount(el))
}

func TestHandle_RemovedElementIsUnrecoverable(t *testing.T) {
	d := fake.New()
	loc := models.ByID("toast")
	el := d.Add(fake.NewElement("div"), loc)
	f, _ := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	_, err := h.Resolve(ctx)
	require.NoError(t, err)

	d.Remove(el)

	_, err = h.Resolve(ctx)
	require.Error(t, err)
	var unrecoverable *models.UnrecoverableReferenceError
	require.ErrorAs(t, err, &unrecoverable)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, models.KindUnrecoverable, models.KindOf(err))
}

// interceptDriver runs a one-shot hook before the next Click or Text call
type interceptDriver struct {
	*fake.Driver
	beforeClick func() error
	beforeText  func() error
}

func (d *interceptDriver) Click(ctx context.Context, ref interfaces.RemoteRef) error {
	if hook := d.beforeClick; hook != nil {
		d.beforeClick = nil
		if err := hook(); err != nil {
			return err
		}
	}
	return d.Driver.Click(ctx, ref)
}

func (d *interceptDriver) Text(ctx context.Context, ref interfaces.RemoteRef) (string, error) {
	if hook := d.beforeText; hook != nil {
		d.beforeText = nil
		if err := hook(); err != nil {
			return "", err
		}
	}
	return d.Driver.Text(ctx, ref)
}

func newInterceptFactory(d *interceptDriver) *Factory {
	src := fake.NewSource(d)
	w := wait.NewWaiter(src, wait.Options{Timeout: testTimeout, Interval: 20 * time.Millisecond}, arbor.NewLogger(), nil)
	return NewFactory(src, w, arbor.NewLogger(), nil)
}

func TestHandle_ElementRemovedDuringActionIsUnrecoverable(t *testing.T) {
	d := &interceptDriver{Driver: fake.New()}
	loc := models.ByID("save")
	el := d.Add(fake.NewElement("button"), loc)
	d.beforeClick = func() error {
		d.Remove(el)
		return models.NewDriverError(models.KindStale, "click", models.ErrStaleReference)
	}
	h := newInterceptFactory(d).Locate(loc)

	err := h.Click(context.Background())
	require.Error(t, err)
	var unrecoverable *models.UnrecoverableReferenceError
	require.ErrorAs(t, err, &unrecoverable)
	assert.Equal(t, models.KindUnrecoverable, models.KindOf(err))
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, 0, d.ClickCount(el))
}

func TestHandle_ReadRecoversFromStale(t *testing.T) {
	d := &interceptDriver{Driver: fake.New()}
	loc := models.ByID("status")
	el := d.Add(fake.NewElement("span"), loc)
	el.Text = "saved"
	d.beforeText = func() error {
		d.MarkStale(el)
		return models.NewDriverError(models.KindStale, "text", models.ErrStaleReference)
	}
	h := newInterceptFactory(d).Locate(loc)

	text, err := h.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "saved", text)
	assert.Equal(t, 2, d.FindCalls(loc))
}

func TestHandle_RefOnlyStaleIsUnrecoverable(t *testing.T) {
	d := fake.New()
	el := d.Add(fake.NewElement("li"), models.ByCSS("li"))
	f, src := newTestFactory(t, d)
	ctx := context.Background()

	refs, err := d.FindElements(ctx, nil, models.ByCSS("li"))
	require.NoError(t, err)
	h := f.Wrap(refs[0], src.S.ID())

	text, err := h.Text(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	d.MarkStale(el)

	start := time.Now()
	err = h.Click(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnrecoverableReference)
	assert.Less(t, time.Since(start), testTimeout, "ref-only handles must fail without waiting")
}

func TestHandle_SessionReplacedReResolves(t *testing.T) {
	d := fake.New()
	loc := models.ByID("menu")
	d.Add(fake.NewElement("nav"), loc)
	f, src := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	_, err := h.Resolve(ctx)
	require.NoError(t, err)

	src.S = &fake.Session{SessionID: "sess_new", WorkerID: src.S.WorkerID, D: d}

	_, err = h.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.FindCalls(loc))
}

func TestHandle_MissingElementTimesOut(t *testing.T) {
	d := fake.New()
	f, _ := newTestFactory(t, d)
	h := f.Locate(models.ByCSS("#missing")).WithTimeout(time.Second)

	start := time.Now()
	_, err := h.Resolve(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	var te *models.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Condition, "#missing")
	assert.True(t, models.IsNotFound(te.LastErr))
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestHandle_WaitsForLateElement(t *testing.T) {
	d := fake.New()
	loc := models.ByID("banner")
	el := d.Add(fake.NewElement("div"), loc)
	d.ShowAfter(el, 150*time.Millisecond)
	f, _ := newTestFactory(t, d)

	require.NoError(t, f.Locate(loc).WaitVisible(context.Background()))
}

func TestHandle_ContextCancelStopsWait(t *testing.T) {
	d := fake.New()
	f, _ := newTestFactory(t, d)
	h := f.Locate(models.ByID("never")).WithTimeout(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.Resolve(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHandle_GuardsReturnFalse(t *testing.T) {
	d := fake.New()
	hidden := fake.NewElement("div")
	hidden.Displayed = false
	d.Add(hidden, models.ByID("hidden"))
	f, _ := newTestFactory(t, d)
	ctx := context.Background()

	assert.False(t, f.Locate(models.ByID("absent")).IsDisplayed(ctx))
	assert.False(t, f.Locate(models.ByID("hidden")).IsDisplayed(ctx))
	assert.False(t, f.Locate(models.ByID("absent")).Present(ctx))
	assert.True(t, f.Locate(models.ByID("hidden")).Present(ctx))
}

func TestHandle_ClickRequiresClickable(t *testing.T) {
	d := fake.New()
	loc := models.ByID("pay")
	el := fake.NewElement("button")
	el.Enabled = false
	d.Add(el, loc)
	f, _ := newTestFactory(t, d)

	go func() {
		time.Sleep(100 * time.Millisecond)
		d.SetEnabled(el, true)
	}()

	require.NoError(t, f.Locate(loc).Click(context.Background()))
	assert.Equal(t, 1, d.ClickCount(el))
}

func TestHandle_WaitGone(t *testing.T) {
	d := fake.New()
	loc := models.ByCSS(".spinner")
	el := d.Add(fake.NewElement("div"), loc)
	f, _ := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	require.NoError(t, h.WaitVisible(ctx))

	go func() {
		time.Sleep(80 * time.Millisecond)
		d.Remove(el)
	}()
	require.NoError(t, h.WaitGone(ctx))
	assert.False(t, h.Present(ctx))
}

func TestHandle_TypeAndRead(t *testing.T) {
	d := fake.New()
	loc := models.ByName("q")
	el := d.Add(fake.NewElement("input"), loc)
	el.Attrs["class"] = "search wide"
	f, _ := newTestFactory(t, d)
	h := f.Locate(loc)
	ctx := context.Background()

	require.NoError(t, h.Type(ctx, "golang"))
	v, err := h.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "golang", v)

	require.NoError(t, h.Type(ctx, "rust"))
	v, err = h.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rust", v, "Type must clear first")

	has, err := h.HasClass(ctx, "wide")
	require.NoError(t, err)
	assert.True(t, has)

	active, err := h.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestHandle_DerivedHandles(t *testing.T) {
	d := fake.New()
	list := d.Add(fake.NewElement("ul"), models.ByID("list"))
	first := d.AddChild(list, fake.NewElement("li"), models.ByCSS("li.first"))
	first.Text = "one"
	second := d.AddChild(list, fake.NewElement("li"))
	second.Text = "two"
	f, _ := newTestFactory(t, d)
	ctx := context.Background()

	h := f.Locate(models.ByCSS("li.first"))

	parent, err := h.Parent(ctx)
	require.NoError(t, err)
	tag, err := parent.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ul", tag)

	next, err := h.NextSibling(ctx, "li")
	require.NoError(t, err)
	text, err := next.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", text)

	children, err := f.Locate(models.ByID("list")).Children(ctx, models.ByTagName("li"))
	require.NoError(t, err)
	assert.Len(t, children, 2)

	assert.False(t, f.Locate(models.ByID("list")).HasChild(ctx, models.ByTagName("span")))
}
