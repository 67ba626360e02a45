// Package metrics provides a Prometheus implementation of the settlement
// metrics sink.
//
// All metrics use the "veilpay" namespace:
//
//	veilpay_settlements_started_total
//	veilpay_settlements_finished_total{outcome="complete|deposit_failed|verify_failed|transfer_failed|below_fees|drained"}
//	veilpay_settlement_duration_seconds
//	veilpay_recoveries_total{outcome="success|failed|impossible"}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"veilpay/internal/sweep"
)

const namespace = "veilpay"

// Metrics implements sweep.Metrics on Prometheus collectors. Safe for
// concurrent use.
type Metrics struct {
	settlementsStarted  prometheus.Counter
	settlementsFinished *prometheus.CounterVec
	settlementDuration  prometheus.Histogram
	recoveries          *prometheus.CounterVec
}

var _ sweep.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates the collectors and registers them with the
// given registerer. A nil registerer skips registration, which tests use
// to avoid duplicate-registration panics.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		settlementsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_started_total",
			Help:      "Total number of settlements started",
		}),
		settlementsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_finished_total",
				Help:      "Total number of finished settlements by outcome",
			},
			[]string{"outcome"},
		),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Histogram of completed settlement durations",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recoveries_total",
				Help:      "Total number of recovery attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.settlementsStarted,
			m.settlementsFinished,
			m.settlementDuration,
			m.recoveries,
		)
	}

	return m
}

// SettlementStarted implements sweep.Metrics.
func (m *Metrics) SettlementStarted() {
	m.settlementsStarted.Inc()
}

// SettlementOutcome implements sweep.Metrics.
func (m *Metrics) SettlementOutcome(outcome string) {
	m.settlementsFinished.WithLabelValues(outcome).Inc()
}

// SettlementDuration implements sweep.Metrics.
func (m *Metrics) SettlementDuration(seconds float64) {
	m.settlementDuration.Observe(seconds)
}

// RecoveryOutcome implements sweep.Metrics.
func (m *Metrics) RecoveryOutcome(outcome string) {
	m.recoveries.WithLabelValues(outcome).Inc()
}
