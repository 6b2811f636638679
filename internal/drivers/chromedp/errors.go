package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/ternarybob/pagekit/internal/drivers/scripts"
	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// scriptError is an exception thrown by page code
type scriptError struct {
	msg string
}

func (e *scriptError) Error() string {
	return e.msg
}

func exceptionText(exc *runtime.ExceptionDetails) string {
	if exc == nil {
		return ""
	}
	if exc.Exception != nil && exc.Exception.Description != "" {
		// first line only, the rest is the JS stack
		desc, _, _ := strings.Cut(exc.Exception.Description, "\n")
		return desc
	}
	return exc.Text
}

// wrapError turns a CDP failure into a DriverError. caller is the context the
// driver method was called with; its cancellation wins over whatever CDP reported.
func wrapError(caller context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if cerr := caller.Err(); cerr != nil {
		return models.NewDriverError(models.KindCanceled, op, cerr)
	}
	var de *models.DriverError
	if errors.As(err, &de) {
		return err
	}
	var se *scriptError
	if errors.As(err, &se) {
		return models.NewDriverError(scripts.Classify(se.msg, true), op, err)
	}
	if errors.Is(err, context.Canceled) {
		// the browser context went away underneath us
		return models.NewDriverError(models.KindDisconnected, op, err)
	}
	return models.NewDriverError(scripts.Classify(err.Error(), false), op, err)
}

type objectRef struct {
	id runtime.RemoteObjectID
}

func (r objectRef) ID() string {
	return string(r.id)
}

func objectID(op string, ref interfaces.RemoteRef) (runtime.RemoteObjectID, error) {
	r, ok := ref.(objectRef)
	if !ok || r.id == "" {
		return "", models.NewDriverError(models.KindOther, op, fmt.Errorf("reference %T was not issued by this driver", ref))
	}
	return r.id, nil
}
