package rod

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ysmood/gson"

	"github.com/ternarybob/pagekit/internal/models"
)

type foreignRef struct{}

func (foreignRef) ID() string { return "x" }

func TestWrapError(t *testing.T) {
	ctx := context.Background()

	evalErr := &rod.EvalError{RuntimeExceptionDetails: &proto.RuntimeExceptionDetails{
		Text:      "Uncaught",
		Exception: &proto.RuntimeRemoteObject{Description: "Error: stale element reference"},
	}}
	assert.True(t, models.IsStale(wrapError(ctx, "text", evalErr)))

	err := wrapError(ctx, "find", errors.New("{-32000 Could not find object with given id }"))
	assert.True(t, models.IsStale(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, models.KindCanceled, models.KindOf(wrapError(cancelled, "click", errors.New("x"))))
	assert.NoError(t, wrapError(ctx, "noop", nil))
}

func TestRectOf(t *testing.T) {
	r := rectOf(gson.New(map[string]any{"x": 10, "y": 20, "width": 100, "height": 40}))
	assert.Equal(t, models.Rect{X: 10, Y: 20, Width: 100, Height: 40}, r)
	assert.Equal(t, models.Point{X: 60, Y: 40}, r.Center())
}

func TestScriptArgs(t *testing.T) {
	obj := &proto.RuntimeRemoteObject{ObjectID: "obj-1"}
	args, err := scriptArgs([]any{elementRef{el: &rod.Element{Object: obj}}, "v", 2})
	require.NoError(t, err)
	assert.Same(t, obj, args[0])
	assert.Equal(t, "v", args[1])

	_, err = scriptArgs([]any{foreignRef{}})
	assert.Error(t, err)
	assert.Equal(t, "obj-1", elementRef{el: &rod.Element{Object: obj}}.ID())
	assert.Equal(t, "", elementRef{}.ID())
}

func TestLauncher_Supports(t *testing.T) {
	l := NewLauncher(models.DefaultBrowserOptions(), arbor.NewLogger())
	assert.True(t, l.Supports(models.EngineChromium))
	assert.False(t, l.Supports(models.EngineChrome))

	_, err := l.Launch(context.Background(), models.EngineFirefox)
	assert.ErrorIs(t, err, models.ErrUnsupportedEngine)
}
