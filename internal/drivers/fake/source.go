package fake

import (
	"context"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// Session is a fixed SessionHandle over one driver
type Session struct {
	SessionID string
	WorkerID  models.WorkerID
	D         interfaces.Driver
}

func (s *Session) ID() string                { return s.SessionID }
func (s *Session) Worker() models.WorkerID   { return s.WorkerID }
func (s *Session) Driver() interfaces.Driver { return s.D }

// Source always returns the same session, or Err when set
type Source struct {
	S   *Session
	Err error
}

// NewSource wraps d in a single-session source
func NewSource(d interfaces.Driver) *Source {
	return &Source{S: &Session{SessionID: "sess_fake", WorkerID: "worker-fake", D: d}}
}

func (s *Source) Current(ctx context.Context) (interfaces.SessionHandle, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.S, nil
}
