package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Round outcomes recorded by Metrics.
const (
	OutcomeApplied    = "applied"
	OutcomeIncomplete = "incomplete"
	OutcomeNotFound   = "not_found"
	OutcomeInvalid    = "invalid"
)

// Metrics holds the Prometheus collectors for the dampening core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rounds      *prometheus.CounterVec
	satisfied   *prometheus.CounterVec
	active      prometheus.Gauge
	queueLength *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered with reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dampen",
			Subsystem: "engine",
			Name:      "rounds_total",
			Help:      "Count of evaluation rounds by outcome",
		}, []string{"mode", "outcome"}),
		satisfied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dampen",
			Subsystem: "engine",
			Name:      "satisfied_total",
			Help:      "Count of dampenings that became satisfied",
		}, []string{"mode", "type"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dampen",
			Subsystem: "engine",
			Name:      "active_dampenings",
			Help:      "Number of active dampening state machines",
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dampen",
			Subsystem: "pool",
			Name:      "queue_length",
			Help:      "Pending rounds per pool worker",
		}, []string{"worker"}),
	}

	m.rounds = register(reg, m.rounds)
	m.satisfied = register(reg, m.satisfied)
	m.active = register(reg, m.active)
	m.queueLength = register(reg, m.queueLength)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) round(mode, outcome string) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) satisfy(mode, typ string) {
	if m == nil {
		return
	}
	m.satisfied.WithLabelValues(mode, typ).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Metrics) setQueueLength(worker string, n int) {
	if m == nil {
		return
	}
	m.queueLength.WithLabelValues(worker).Set(float64(n))
}
