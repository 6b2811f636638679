// -----------------------------------------------------------------------
// Session Registry - one isolated browser session per worker
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pagekit/internal/interfaces"
	"github.com/ternarybob/pagekit/internal/metrics"
	"github.com/ternarybob/pagekit/internal/models"
)

// Options configures session creation and liveness checks
type Options struct {
	Engine         models.EngineKind
	ProbeTimeout   time.Duration
	LaunchTimeout  time.Duration
	LaunchRate     float64 // launches per second across all workers, 0 = unlimited
	LaunchAttempts int
}

// DefaultOptions returns chrome with a 5s probe, 60s launch timeout and 3 launch attempts
func DefaultOptions() Options {
	return Options{
		Engine:         models.DefaultEngine,
		ProbeTimeout:   5 * time.Second,
		LaunchTimeout:  60 * time.Second,
		LaunchRate:     2,
		LaunchAttempts: 3,
	}
}

// slot serializes create, replace and release for one worker
type slot struct {
	mu      sync.Mutex
	session *Session
}

// Registry maps each worker to exactly one live session.
// Different workers create sessions in parallel; calls for one worker are serialized.
type Registry struct {
	launcher interfaces.Launcher
	opts     Options
	logger   arbor.ILogger
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	retry    *RetryPolicy

	mu    sync.Mutex
	slots map[models.WorkerID]*slot
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(launcher interfaces.Launcher, opts Options, logger arbor.ILogger, m *metrics.Metrics) *Registry {
	def := DefaultOptions()
	if opts.Engine == "" {
		opts.Engine = def.Engine
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = def.ProbeTimeout
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = def.LaunchTimeout
	}
	if opts.LaunchAttempts <= 0 {
		opts.LaunchAttempts = def.LaunchAttempts
	}
	if logger == nil {
		logger = arbor.NewLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LaunchRate), 1)
	}

	retry := NewRetryPolicy()
	retry.MaxAttempts = opts.LaunchAttempts

	return &Registry{
		launcher: launcher,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		limiter:  limiter,
		retry:    retry,
		slots:    make(map[models.WorkerID]*slot),
	}
}

// SetRetryPolicy replaces the launch retry policy
func (r *Registry) SetRetryPolicy(p *RetryPolicy) {
	r.retry = p
}

func (r *Registry) slot(worker models.WorkerID) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl, ok := r.slots[worker]
	if !ok {
		sl = &slot{}
		r.slots[worker] = sl
	}
	return sl
}

func (r *Registry) existingSlot(worker models.WorkerID) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[worker]
}

// CurrentOrCreate returns the worker's live session, creating one on first use.
//
// An existing session is probed first. If the probe fails the session is closed,
// replaced and the replacement returned. A failed creation or replacement is a
// *models.SessionInitError.
func (r *Registry) CurrentOrCreate(ctx context.Context, worker models.WorkerID) (*Session, error) {
	if worker == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	sl := r.slot(worker)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	replaced := ""
	if s := sl.session; s != nil {
		err := r.probe(ctx, s)
		if err == nil {
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// the caller gave up, which says nothing about the browser
			return nil, ctxErr
		}

		r.logger.Warn().
			Str("worker", worker.String()).
			Str("session_id", s.ID()).
			Err(err).
			Msg("Session failed liveness probe, replacing")
		if cerr := s.Close(); cerr != nil {
			r.logger.Debug().Str("session_id", s.ID()).Err(cerr).Msg("Closing dead session failed")
		}
		sl.session = nil
		replaced = s.ID()
	}

	s, err := r.create(ctx, worker, r.opts.Engine)
	if err != nil {
		return nil, err
	}
	sl.session = s

	if replaced != "" {
		r.metrics.SessionReplaced()
		r.logger.Info().
			Str("worker", worker.String()).
			Str("old_session_id", replaced).
			Str("session_id", s.ID()).
			Msg("Session replaced")
	}
	return s, nil
}

// InitExplicit closes any session the worker holds and creates one with engine
func (r *Registry) InitExplicit(ctx context.Context, worker models.WorkerID, engine models.EngineKind) (*Session, error) {
	if worker == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if engine == "" {
		engine = r.opts.Engine
	}
	sl := r.slot(worker)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if old := sl.session; old != nil {
		sl.session = nil
		if err := old.Close(); err != nil {
			r.logger.Debug().Str("session_id", old.ID()).Err(err).Msg("Closing previous session failed")
		}
	}

	s, err := r.create(ctx, worker, engine)
	if err != nil {
		return nil, err
	}
	sl.session = s
	return s, nil
}

// Release closes the worker's session. It is safe to call when none exists and more than once.
func (r *Registry) Release(worker models.WorkerID) error {
	sl := r.existingSlot(worker)
	if sl == nil {
		return nil
	}
	sl.mu.Lock()
	s := sl.session
	sl.session = nil
	sl.mu.Unlock()

	if s == nil {
		return nil
	}
	r.logger.Debug().
		Str("worker", worker.String()).
		Str("session_id", s.ID()).
		Dur("age", time.Since(s.CreatedAt())).
		Msg("Releasing session")
	if err := s.Close(); err != nil {
		return fmt.Errorf("release session %s: %w", s.ID(), err)
	}
	return nil
}

// ReleaseAll closes every session and returns the joined close errors
func (r *Registry) ReleaseAll() error {
	var errs []error
	for _, w := range r.Workers() {
		if err := r.Release(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Workers lists the workers that currently hold a session, sorted.
// Slots outlive their sessions so a worker keeps its slot across release and re-create.
func (r *Registry) Workers() []models.WorkerID {
	r.mu.Lock()
	slots := make(map[models.WorkerID]*slot, len(r.slots))
	for w, sl := range r.slots {
		slots[w] = sl
	}
	r.mu.Unlock()

	out := make([]models.WorkerID, 0, len(slots))
	for w, sl := range slots {
		sl.mu.Lock()
		held := sl.session != nil
		sl.mu.Unlock()
		if held {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return out
}

// Peek returns the worker's session without probing or creating one
func (r *Registry) Peek(worker models.WorkerID) (*Session, bool) {
	sl := r.existingSlot(worker)
	if sl == nil {
		return nil, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.session, sl.session != nil
}

func (r *Registry) probe(ctx context.Context, s *Session) error {
	if !s.Alive() {
		return fmt.Errorf("session %s is closed", s.ID())
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()
	_, err := s.Driver().WindowHandles(probeCtx)
	return err
}

func (r *Registry) create(ctx context.Context, worker models.WorkerID, engine models.EngineKind) (*Session, error) {
	start := time.Now()
	var d interfaces.Driver

	attempts, err := r.retry.Execute(ctx, r.logger, func(attempt int) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		launchCtx, cancel := context.WithTimeout(ctx, r.opts.LaunchTimeout)
		defer cancel()

		var err error
		d, err = r.launcher.Launch(launchCtx, engine)
		if err != nil {
			r.logger.Debug().
				Str("worker", worker.String()).
				Str("engine", engine.String()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("Browser launch failed")
		}
		return err
	})
	if err != nil {
		r.metrics.SessionInitFailed(engine.String())
		r.logger.Error().
			Str("worker", worker.String()).
			Str("engine", engine.String()).
			Int("attempts", attempts).
			Err(err).
			Msg("Session init failed")
		return nil, &models.SessionInitError{Worker: worker, Engine: engine, Attempts: attempts, Err: err}
	}

	s := newSession(worker, engine, d, r.metrics)
	r.metrics.SessionCreated(engine.String())
	r.logger.Info().
		Str("worker", worker.String()).
		Str("engine", engine.String()).
		Str("session_id", s.ID()).
		Int("attempts", attempts).
		Dur("startup_time", time.Since(start)).
		Msg("Session created")
	return s, nil
}

// Scope binds the registry to one worker so element handles and waiters can
// fetch the current session without knowing the worker
func (r *Registry) Scope(worker models.WorkerID) *Scope {
	return &Scope{registry: r, worker: worker}
}

// Scope is a worker-bound interfaces.SessionSource
type Scope struct {
	registry *Registry
	worker   models.WorkerID
}

var _ interfaces.SessionSource = (*Scope)(nil)

func (s *Scope) Worker() models.WorkerID {
	return s.worker
}

func (s *Scope) Current(ctx context.Context) (interfaces.SessionHandle, error) {
	sess, err := s.registry.CurrentOrCreate(ctx, s.worker)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Release closes the scoped worker's session
func (s *Scope) Release() error {
	return s.registry.Release(s.worker)
}
