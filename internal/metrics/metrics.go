// Package metrics expone los contadores Prometheus del guard
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elsanchez/krakguard/internal/domain"
)

const namespace = "krakguard"

// Metrics agrupa los contadores. Un *Metrics nil no hace nada.
type Metrics struct {
	calls       prometheus.Counter
	outcomes    *prometheus.CounterVec
	batches     *prometheus.CounterVec
	faults      *prometheus.CounterVec
	applyErrors prometheus.Counter
}

// New registra los contadores en reg (nil: sin registrar)
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		calls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "External optimizer calls issued.",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Classified optimizer outcomes.",
		}, []string{"outcome"}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches by final state.",
		}, []string{"state"}),
		faults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Internal faults recovered at the batch boundary.",
		}, []string{"phase"}),
		applyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_errors_total",
			Help:      "Successful optimizer results that could not be persisted.",
		}),
	}
}

func (m *Metrics) ObserveCall() {
	if m != nil {
		m.calls.Inc()
	}
}

func (m *Metrics) ObserveOutcome(o domain.Outcome) {
	if m != nil {
		m.outcomes.WithLabelValues(string(o)).Inc()
	}
}

func (m *Metrics) ObserveBatch(s domain.BatchState) {
	if m != nil {
		m.batches.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) ObserveFault(phase string) {
	if m != nil {
		m.faults.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) ObserveApplyError() {
	if m != nil {
		m.applyErrors.Inc()
	}
}
