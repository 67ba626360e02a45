package sweep

import "errors"

var (
	// ErrInsufficientFundsAfterFees means the observed balance does not
	// cover the fee buffer, so there is nothing worth depositing.
	ErrInsufficientFundsAfterFees = errors.New("insufficient funds after fees")

	// ErrDepositFailed means the deposit retry budget was exhausted.
	// Funds remain safely in the burner.
	ErrDepositFailed = errors.New("deposit failed")

	// ErrPoolBalanceZeroAfterDeposit means the pooled balance never became
	// positive within the verify budget: the deposit likely failed or was
	// fully consumed by fees.
	ErrPoolBalanceZeroAfterDeposit = errors.New("pool balance zero after deposit")

	// ErrPoolDrained means the pooled balance was observed to reach zero
	// mid-transfer; the attempt is aborted rather than retried.
	ErrPoolDrained = errors.New("pool balance reached zero during transfer")

	// ErrTransferFailed means the transfer retry budget or wall-clock
	// timeout was exhausted. Funds are safe in the pool; a PendingSweep
	// checkpoint was recorded and recovery is possible.
	ErrTransferFailed = errors.New("private transfer failed")

	// ErrRecoveryImpossible means the pool balance was zero during
	// recovery: there is nothing left to recover.
	ErrRecoveryImpossible = errors.New("nothing to recover, pool balance is zero")

	// ErrNoPendingSweep means recovery was invoked without a checkpoint.
	ErrNoPendingSweep = errors.New("no pending sweep checkpoint")

	// ErrNoPendingApproval means approval was invoked with nothing waiting.
	ErrNoPendingApproval = errors.New("no settlement awaiting approval")

	// ErrSettlementInFlight means a settlement attempt for the burner is
	// already running, so this one was rejected rather than doubled up.
	ErrSettlementInFlight = errors.New("settlement already in flight for this burner")

	// ErrApprovalMismatch means the approval did not carry the observed
	// amount it is confirming.
	ErrApprovalMismatch = errors.New("approval amount does not match observation")

	// ErrNotReady means the orchestrator was used before Init.
	ErrNotReady = errors.New("orchestrator not initialized")
)
