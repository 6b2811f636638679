package fake

import (
	"context"
	"sync"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/models"
)

// Launcher hands out a fresh Driver per launch and remembers them in order
type Launcher struct {
	mu      sync.Mutex
	drivers []*Driver
	engines []models.EngineKind
	failErr error
	fails   int

	// Setup, when set, prepares each new driver before it is returned
	Setup func(*Driver)
}

var _ interfaces.Launcher = (*Launcher)(nil)

func NewLauncher() *Launcher {
	return &Launcher{}
}

// FailNext makes the next n launches return err
func (l *Launcher) FailNext(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails = n
	l.failErr = err
}

func (l *Launcher) Launch(ctx context.Context, engine models.EngineKind) (interfaces.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fails > 0 {
		l.fails--
		return nil, l.failErr
	}
	d := New()
	if l.Setup != nil {
		l.Setup(d)
	}
	l.drivers = append(l.drivers, d)
	l.engines = append(l.engines, engine)
	return d, nil
}

// Drivers returns every driver launched so far
func (l *Launcher) Drivers() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.drivers...)
}

// Engines returns the engine kind of every launch
func (l *Launcher) Engines() []models.EngineKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.EngineKind(nil), l.engines...)
}

// Launches counts successful launches
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.drivers)
}
