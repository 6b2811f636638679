// Package metrics records wait, session and navigation outcomes as Prometheus metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagekit"

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeMismatch = "mismatch"
)

type Metrics struct {
	waits            *prometheus.CounterVec
	waitDuration     *prometheus.HistogramVec
	sessionsCreated  *prometheus.CounterVec
	sessionsReplaced prometheus.Counter
	sessionsReleased prometheus.Counter
	sessionFailures  *prometheus.CounterVec
	rebinds          prometheus.Counter
	navigations      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_total",
			Help:      "Condition waits by condition kind and outcome.",
		}, []string{"condition", "outcome"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent in condition waits.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"condition"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by engine.",
		}, []string{"engine"}),
		sessionsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_replaced_total",
			Help:      "Sessions replaced after a failed liveness probe.",
		}),
		sessionsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_released_total",
			Help:      "Sessions closed.",
		}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_init_failures_total",
			Help:      "Session launches that failed after all attempts.",
		}, []string{"engine"}),
		rebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "element_rebinds_total",
			Help:      "Stale element references re-resolved through their locator.",
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Navigations by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.waits,
			m.waitDuration,
			m.sessionsCreated,
			m.sessionsReplaced,
			m.sessionsReleased,
			m.sessionFailures,
			m.rebinds,
			m.navigations,
		)
	}
	return m
}

func (m *Metrics) ObserveWait(condition, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(condition, outcome).Inc()
	m.waitDuration.WithLabelValues(condition).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionCreated(engine string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(engine).Inc()
}

func (m *Metrics) SessionReplaced() {
	if m == nil {
		return
	}
	m.sessionsReplaced.Inc()
}

func (m *Metrics) SessionReleased() {
	if m == nil {
		return
	}
	m.sessionsReleased.Inc()
}

func (m *Metrics) SessionInitFailed(engine string) {
	if m == nil {
		return
	}
	m.sessionFailures.WithLabelValues(engine).Inc()
}

func (m *Metrics) ElementRebound() {
	if m == nil {
		return
	}
	m.rebinds.Inc()
}

func (m *Metrics) Navigation(outcome string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps everything registered on g in the node-exporter textfile format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
