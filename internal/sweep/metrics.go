package sweep

// Metrics is the orchestrator's metrics sink. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// SettlementStarted increments when a settlement begins executing.
	SettlementStarted()

	// SettlementOutcome records a finished settlement.
	// Labels: outcome (complete, deposit_failed, verify_failed,
	// transfer_failed, below_fees, drained).
	SettlementOutcome(outcome string)

	// SettlementDuration records how long a completed settlement took.
	SettlementDuration(seconds float64)

	// RecoveryOutcome records a recovery attempt.
	// Labels: outcome (success, failed, impossible).
	RecoveryOutcome(outcome string)
}

// NopMetrics discards all metrics. It is the default when no collector is
// configured.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) SettlementStarted()                 {}
func (NopMetrics) SettlementOutcome(outcome string)   {}
func (NopMetrics) SettlementDuration(seconds float64) {}
func (NopMetrics) RecoveryOutcome(outcome string)     {}
