package interfaces

import (
	"context"

	"github.com/ternarybob/pagekit/internal/models"
)

// SessionHandle is a live session as seen by element and navigation code
type SessionHandle interface {
	ID() string
	Worker() models.WorkerID
	Driver() Driver
}

// SessionSource hands out the current session for one worker.
// Implementations re-check liveness on every call, so callers fetch the session
// at use time rather than holding on to it.
type SessionSource interface {
	Current(ctx context.Context) (SessionHandle, error)
}
