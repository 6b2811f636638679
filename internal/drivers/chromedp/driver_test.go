package chromedp

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagekit/internal/models"
)

type foreignRef struct{}

func (foreignRef) ID() string { return "x" }

func TestCallArguments(t *testing.T) {
	args, err := callArguments([]any{objectRef{id: "obj-1"}, "text", 3, true, nil})
	require.NoError(t, err)
	require.Len(t, args, 5)

	assert.Equal(t, runtime.RemoteObjectID("obj-1"), args[0].ObjectID)
	assert.Equal(t, `"text"`, string(args[1].Value))
	assert.Equal(t, `3`, string(args[2].Value))
	assert.Equal(t, `true`, string(args[3].Value))
	assert.Equal(t, `null`, string(args[4].Value))

	_, err = callArguments([]any{foreignRef{}})
	assert.Error(t, err)
}

func TestWrapError(t *testing.T) {
	ctx := context.Background()

	err := wrapError(ctx, "text", &scriptError{msg: "Error: stale element reference"})
	assert.True(t, models.IsStale(err))

	err = wrapError(ctx, "find", errors.New("Could not find object with given id"))
	assert.True(t, models.IsStale(err))

	err = wrapError(ctx, "find", &scriptError{msg: "TypeError: boom"})
	assert.Equal(t, models.KindScript, models.KindOf(err))

	err = wrapError(ctx, "click", context.Canceled)
	assert.ErrorIs(t, err, models.ErrDisconnected)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = wrapError(cancelled, "click", errors.New("anything"))
	assert.Equal(t, models.KindCanceled, models.KindOf(err))

	assert.NoError(t, wrapError(ctx, "noop", nil))
}

func TestExceptionText(t *testing.T) {
	exc := &runtime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &runtime.RemoteObject{Description: "Error: stale element reference\n    at <anonymous>:2:9"},
	}
	assert.Equal(t, "Error: stale element reference", exceptionText(exc))
	assert.Equal(t, "Uncaught", exceptionText(&runtime.ExceptionDetails{Text: "Uncaught"}))
	assert.Equal(t, "", exceptionText(nil))
}

func TestObjectID_RejectsForeignRefs(t *testing.T) {
	_, err := objectID("click", foreignRef{})
	require.Error(t, err)
	var de *models.DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "click", de.Op)
}

func TestLauncher_RejectsUnsupportedEngines(t *testing.T) {
	l := NewLauncher(models.DefaultBrowserOptions(), arbor.NewLogger())
	_, err := l.Launch(context.Background(), models.EngineFirefox)
	assert.ErrorIs(t, err, models.ErrUnsupportedEngine)

	_, err = l.Launch(context.Background(), models.EngineRemote)
	assert.ErrorContains(t, err, "remote_url")

	assert.True(t, l.Supports(models.EngineEdge))
	assert.False(t, l.Supports(models.EngineChromium))
}

func TestFindBinary(t *testing.T) {
	_, err := findBinary([]string{"pagekit-no-such-browser"})
	assert.Error(t, err)
}
