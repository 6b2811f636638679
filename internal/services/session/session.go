package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
)

// Session is one live automation session owned by a single worker.
// Its ID changes whenever the registry replaces it.
type Session struct {
	id        string
	worker    models.WorkerID
	engine    models.EngineKind
	driver    interfaces.Driver
	createdAt time.Time

	alive     atomic.Bool
	closeOnce sync.Once
	closeErr  error
	metrics   *metrics.Metrics
}

var _ interfaces.SessionHandle = (*Session)(nil)

func newSession(worker models.WorkerID, engine models.EngineKind, d interfaces.Driver, m *metrics.Metrics) *Session {
	s := &Session{
		id:        models.NewSessionID(),
		worker:    worker,
		engine:    engine,
		driver:    d,
		createdAt: time.Now(),
		metrics:   m,
	}
	s.alive.Store(true)
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Worker() models.WorkerID   { return s.worker }
func (s *Session) Engine() models.EngineKind { return s.engine }
func (s *Session) Driver() interfaces.Driver { return s.driver }
func (s *Session) CreatedAt() time.Time      { return s.createdAt }
func (s *Session) Alive() bool               { return s.alive.Load() }

// Close releases the driver. Only the first call reaches the driver;
// later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		s.closeErr = s.driver.Close()
		s.metrics.SessionReleased()
	})
	return s.closeErr
}
