// Package sweep implements the settlement state machine: moving funds
// received on a spending burner through the pooling service into the
// stable private-balance address, rotating the burner afterwards, and
// recovering from partial failure without ever persisting a secret key.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"veilpay/internal/burner"
	"veilpay/internal/client"
	"veilpay/internal/model"
	"veilpay/internal/noncechain"
	"veilpay/internal/retry"
	"veilpay/internal/secret"
	"veilpay/internal/store"
)

// State names the orchestrator's position in the settlement flow.
type State int

const (
	StateIdle State = iota
	StateDetected
	StateDepositing
	StateVerifying
	StateTransferring
	StateRotated
	StatePendingRecovery
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetected:
		return "detected"
	case StateDepositing:
		return "depositing"
	case StateVerifying:
		return "verifying"
	case StateTransferring:
		return "transferring"
	case StateRotated:
		return "rotated"
	case StatePendingRecovery:
		return "pending_recovery"
	default:
		return "unknown"
	}
}

// SigningMode gates whether a detected balance settles immediately or
// waits for an explicit approval carrying the observed amount.
type SigningMode string

const (
	ModeAuto   SigningMode = "auto"
	ModeManual SigningMode = "manual"
)

// PoolService is the opaque pooling/settlement collaborator.
type PoolService interface {
	Deposit(ctx context.Context, address string, lamports uint64) (string, error)
	Balance(ctx context.Context, address string) (uint64, error)
	PrivateTransfer(ctx context.Context, from, to string, lamports uint64) (string, error)
}

// ChainOracle answers one-shot balance queries against the ledger, used to
// re-quote a burner's true balance when a pushed observation has raced
// ahead of RPC-visible truth.
type ChainOracle interface {
	Balance(ctx context.Context, address string) (uint64, error)
}

// RemoteStore mirrors encrypted state records to the untrusted remote
// party.
type RemoteStore interface {
	ListAll(ctx context.Context) ([]model.RemoteRecord, error)
	Create(ctx context.Context, blob []byte) (string, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PendingApproval is surfaced to the caller in manual mode after a balance
// is detected; settlement resumes only through Approve with the same
// amount.
type PendingApproval struct {
	Address    string
	Amount     uint64
	ObservedAt time.Time
}

// Config carries the settlement policy. All values are deliberate
// operational choices, not correctness requirements; defaults mirror the
// production service.
type Config struct {
	Threshold   uint64 // observations below this are ignored as dust
	FeeBuffer   uint64 // lamports withheld from deposits to cover fees
	SettleDelay time.Duration
	Deposit     retry.Policy
	Verify      retry.Policy
	Transfer    retry.Policy // TotalTimeout bounds the whole transfer loop
	Mode        SigningMode
}

// Orchestrator runs settlements for one wallet session. It is safe for
// concurrent balance observations; at most one settlement per burner is
// ever in flight, and a second observation while one runs is dropped.
type Orchestrator struct {
	pool    PoolService
	chain   ChainOracle
	local   *store.Store
	cipher  *store.Cipher
	remote  RemoteStore
	cfg     Config
	log     zerolog.Logger
	metrics Metrics

	mu         sync.Mutex
	seed       []byte // borrowed from the session, wiped by its owner
	ownerHash  string
	stableAddr string
	cur        *model.BurnerKeyPair
	remoteID   string
	state      State
	inFlight   map[string]bool
	approval   *PendingApproval
	checkpoint *model.PendingSweep
}

// New wires an orchestrator; Init must run before observations arrive.
func New(pool PoolService, chain ChainOracle, local *store.Store, cipher *store.Cipher, remote RemoteStore, cfg Config, log zerolog.Logger, metrics Metrics) *Orchestrator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Orchestrator{
		pool:     pool,
		chain:    chain,
		local:    local,
		cipher:   cipher,
		remote:   remote,
		cfg:      cfg,
		log:      log.With().Str("component", "sweep").Logger(),
		metrics:  metrics,
		inFlight: make(map[string]bool),
	}
}

// Init binds the orchestrator to a session's key material and performs the
// two start-up safety checks: it forces the spending nonce past the
// reserved index 0, and it sweeps any pool balance left behind by a crash
// between depositing and transferring on a previous run.
func (o *Orchestrator) Init(ctx context.Context, masterSeed []byte, ownerHash, stableAddr string, nonce model.Nonce, remoteID string) error {
	o.mu.Lock()
	o.seed = masterSeed
	o.ownerHash = ownerHash
	o.stableAddr = stableAddr
	o.remoteID = remoteID
	o.state = StateIdle
	o.mu.Unlock()

	// Index 0 must never back public-facing settlement. Reaching here
	// with index 0 means external data corruption or a migration bug;
	// advance past it before deriving anything.
	if nonce.Index == 0 {
		o.log.Warn().Msg("spending nonce at reserved index 0, forcing advance")
		next, err := noncechain.Advance(nonce)
		if err != nil {
			return err
		}
		if err := o.persistState(ctx, next); err != nil {
			return fmt.Errorf("failed to persist forced advance: %w", err)
		}
		nonce = next
	}

	cur, err := burner.DeriveSpendingBurner(masterSeed, nonce)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.cur = cur
	o.mu.Unlock()

	// A previous run may have died after depositing but before the
	// transfer, leaving value parked in the pool with no checkpoint.
	bal, err := o.pool.Balance(ctx, cur.Address)
	if err != nil {
		o.log.Warn().Err(err).Msg("pool balance check at init failed, leftover funds will be found on next init")
		return nil
	}
	if bal > 0 {
		o.log.Info().Uint64("lamports", bal).Msg("leftover pool balance found at init, sweeping")
		if err := o.transferAndRotate(ctx, cur); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown wipes the current burner's secret key and drops volatile state.
// The master seed is owned and wiped by the session.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	burner.Clear(o.cur)
	o.cur = nil
	o.seed = nil
	o.approval = nil
	o.checkpoint = nil
	o.state = StateIdle
}

// ObserveBalance is the entry point for external balance observations on
// the current spending burner. Below-threshold amounts are ignored as
// dust, a settlement already in flight drops the observation, and manual
// mode parks it as a pending approval instead of settling.
func (o *Orchestrator) ObserveBalance(ctx context.Context, address string, amount uint64) error {
	o.mu.Lock()
	if o.cur == nil {
		o.mu.Unlock()
		return ErrNotReady
	}
	if address != o.cur.Address {
		o.mu.Unlock()
		o.log.Debug().Str("address", address).Msg("observation for non-current burner dropped")
		return nil
	}
	if amount < o.cfg.Threshold {
		o.mu.Unlock()
		o.log.Debug().Uint64("lamports", amount).Msg("observation below threshold ignored")
		return nil
	}
	if o.inFlight[address] {
		o.mu.Unlock()
		o.log.Debug().Str("address", address).Msg("settlement already in flight, observation dropped")
		return nil
	}

	if o.cfg.Mode == ModeManual {
		o.approval = &PendingApproval{Address: address, Amount: amount, ObservedAt: time.Now()}
		o.state = StateDetected
		o.mu.Unlock()
		o.log.Info().Uint64("lamports", amount).Msg("settlement awaiting manual approval")
		return nil
	}

	o.inFlight[address] = true
	o.state = StateDetected
	kp := o.cur
	o.mu.Unlock()

	defer o.clearInFlight(address)
	return o.settle(ctx, kp, amount)
}

// Approve resumes a manual-mode settlement. The amount must match the
// observation being approved.
func (o *Orchestrator) Approve(ctx context.Context, amount uint64) error {
	o.mu.Lock()
	if o.cur == nil {
		o.mu.Unlock()
		return ErrNotReady
	}
	if o.approval == nil {
		o.mu.Unlock()
		return ErrNoPendingApproval
	}
	if o.approval.Amount != amount {
		o.mu.Unlock()
		return fmt.Errorf("%w: approved %d, observed %d", ErrApprovalMismatch, amount, o.approval.Amount)
	}
	if o.inFlight[o.approval.Address] {
		// The approval stays parked; the caller can retry once the
		// running settlement finishes.
		o.mu.Unlock()
		return ErrSettlementInFlight
	}

	address := o.approval.Address
	o.approval = nil
	o.inFlight[address] = true
	kp := o.cur
	o.mu.Unlock()

	defer o.clearInFlight(address)
	return o.settle(ctx, kp, amount)
}

func (o *Orchestrator) clearInFlight(address string) {
	o.mu.Lock()
	delete(o.inFlight, address)
	o.mu.Unlock()
}

// settle drives Depositing -> Verifying -> Transferring -> Rotated.
func (o *Orchestrator) settle(ctx context.Context, kp *model.BurnerKeyPair, observed uint64) error {
	o.metrics.SettlementStarted()
	start := time.Now()

	if err := o.depositPhase(ctx, kp, observed); err != nil {
		outcome := "deposit_failed"
		if errors.Is(err, ErrInsufficientFundsAfterFees) {
			outcome = "below_fees"
		}
		o.metrics.SettlementOutcome(outcome)
		o.setState(StateIdle)
		return err
	}

	if err := o.verifyPhase(ctx, kp); err != nil {
		o.metrics.SettlementOutcome("verify_failed")
		o.setState(StateIdle)
		return err
	}

	if err := o.transferAndRotate(ctx, kp); err != nil {
		if errors.Is(err, ErrPoolDrained) {
			o.metrics.SettlementOutcome("drained")
		} else {
			o.metrics.SettlementOutcome("transfer_failed")
		}
		return err
	}

	o.metrics.SettlementOutcome("complete")
	o.metrics.SettlementDuration(time.Since(start).Seconds())
	o.log.Info().Uint32("index", kp.NonceIndex).Msg("settlement complete")
	return nil
}

// depositPhase deposits the observed balance minus the fee buffer. When
// the pool rejects the amount as exceeding the burner's real balance, the
// true on-chain balance is re-quoted before the next attempt: balances
// observed via a push channel can race ahead of RPC-visible truth.
func (o *Orchestrator) depositPhase(ctx context.Context, kp *model.BurnerKeyPair, observed uint64) error {
	if observed <= o.cfg.FeeBuffer {
		return fmt.Errorf("%w: observed %d, fee buffer %d", ErrInsufficientFundsAfterFees, observed, o.cfg.FeeBuffer)
	}
	amount := observed - o.cfg.FeeBuffer

	o.setState(StateDepositing)

	err := retry.Do(ctx, o.cfg.Deposit, func(ctx context.Context) error {
		_, err := o.pool.Deposit(ctx, kp.Address, amount)
		if err == nil {
			return nil
		}
		if errors.Is(err, client.ErrInsufficientBalance) {
			bal, qerr := o.chain.Balance(ctx, kp.Address)
			if qerr != nil {
				return fmt.Errorf("balance re-quote failed: %w", qerr)
			}
			if bal <= o.cfg.FeeBuffer {
				return retry.Abort(fmt.Errorf("%w: on-chain balance %d, fee buffer %d", ErrInsufficientFundsAfterFees, bal, o.cfg.FeeBuffer))
			}
			amount = bal - o.cfg.FeeBuffer
			o.log.Debug().Uint64("lamports", amount).Msg("depositable amount recomputed from on-chain balance")
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFundsAfterFees) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDepositFailed, err)
	}
	return nil
}

// verifyPhase waits out the settling delay and polls until the pooled
// balance is observed positive.
func (o *Orchestrator) verifyPhase(ctx context.Context, kp *model.BurnerKeyPair) error {
	o.setState(StateVerifying)

	select {
	case <-time.After(o.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	err := retry.Do(ctx, o.cfg.Verify, func(ctx context.Context) error {
		bal, err := o.pool.Balance(ctx, kp.Address)
		if err != nil {
			return err
		}
		if bal == 0 {
			return errors.New("pool balance still zero")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoolBalanceZeroAfterDeposit, err)
	}
	return nil
}

// transferAndRotate moves the entire currently observed pooled balance to
// the stable address, then rotates the burner. The balance is re-read on
// every attempt since it may change; a balance observed at zero aborts the
// loop. Exhausting the budget records a PendingSweep checkpoint.
func (o *Orchestrator) transferAndRotate(ctx context.Context, kp *model.BurnerKeyPair) error {
	o.setState(StateTransferring)

	var lastBalance uint64
	err := retry.Do(ctx, o.cfg.Transfer, func(ctx context.Context) error {
		bal, err := o.pool.Balance(ctx, kp.Address)
		if err != nil {
			return err
		}
		if bal == 0 {
			return retry.Abort(ErrPoolDrained)
		}
		lastBalance = bal

		_, err = o.pool.PrivateTransfer(ctx, kp.Address, o.stableAddr, bal)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrPoolDrained) {
			o.setState(StateIdle)
			return err
		}
		o.mu.Lock()
		o.checkpoint = &model.PendingSweep{
			BurnerAddress:    kp.Address,
			BurnerNonceIndex: kp.NonceIndex,
			PoolBalance:      lastBalance,
			Timestamp:        time.Now(),
		}
		o.state = StatePendingRecovery
		o.mu.Unlock()
		o.log.Warn().Uint32("index", kp.NonceIndex).Msg("transfer failed, funds are safe in the pool, recovery possible")
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return o.rotate(ctx, kp)
}

// rotate advances the nonce chain, syncs the encrypted state remotely,
// persists it locally, wipes the retired burner's secret key and derives
// the next spending burner.
func (o *Orchestrator) rotate(ctx context.Context, old *model.BurnerKeyPair) error {
	next, err := noncechain.Advance(model.Nonce{
		Value:     old.Nonce,
		Index:     old.NonceIndex,
		OwnerHash: o.ownerHash,
	})
	if err != nil {
		return err
	}

	if err := o.persistState(ctx, next); err != nil {
		return err
	}

	burner.Clear(old)

	o.mu.Lock()
	seed := o.seed
	o.mu.Unlock()

	cur, err := burner.DeriveSpendingBurner(seed, next)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.cur = cur
	o.checkpoint = nil
	o.state = StateRotated
	o.mu.Unlock()

	o.log.Info().Uint32("index", next.Index).Msg("rotated to next spending burner")
	return nil
}

// persistState mirrors the new state to the remote store (best-effort:
// local state stays authoritative and the next discovery pass reconciles)
// and then writes it locally (must succeed).
func (o *Orchestrator) persistState(ctx context.Context, nonce model.Nonce) error {
	state := model.PersistedNonceState{NonceValue: nonce.Value, NonceIndex: nonce.Index}

	o.syncRemote(ctx, state)

	if err := o.local.Put(o.cipher, o.ownerHash, state); err != nil {
		return fmt.Errorf("failed to persist nonce state: %w", err)
	}
	return nil
}

func (o *Orchestrator) syncRemote(ctx context.Context, state model.PersistedNonceState) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		o.log.Warn().Err(err).Msg("remote sync skipped, state marshal failed")
		return
	}
	defer secret.Wipe(plaintext)

	blob, err := o.cipher.Seal(plaintext)
	if err != nil {
		o.log.Warn().Err(err).Msg("remote sync skipped, seal failed")
		return
	}

	newID, err := o.remote.Create(ctx, blob)
	if err != nil {
		o.log.Warn().Err(err).Msg("remote record create failed, local state remains authoritative")
		return
	}

	o.mu.Lock()
	oldID := o.remoteID
	o.remoteID = newID
	o.mu.Unlock()

	if oldID != "" {
		if _, err := o.remote.Delete(ctx, oldID); err != nil {
			o.log.Warn().Err(err).Str("record", oldID).Msg("stale remote record delete failed")
		}
	}
}

// RecoverPendingSweep resumes an interrupted settlement from its
// checkpoint. The burner secret key is re-derived on demand from the
// checkpoint's nonce index and wiped before returning, success or not.
// Success clears the checkpoint and rotates; a failed transfer leaves the
// checkpoint intact for a later retry.
func (o *Orchestrator) RecoverPendingSweep(ctx context.Context) error {
	o.mu.Lock()
	if o.seed == nil {
		o.mu.Unlock()
		return ErrNotReady
	}
	cp := o.checkpoint
	if cp == nil {
		o.mu.Unlock()
		return ErrNoPendingSweep
	}
	if o.inFlight[cp.BurnerAddress] {
		o.mu.Unlock()
		return ErrSettlementInFlight
	}
	o.inFlight[cp.BurnerAddress] = true
	seed := o.seed
	o.mu.Unlock()

	// Observations for the checkpointed burner are dropped until recovery
	// finishes; only one settlement attempt per burner may run.
	defer o.clearInFlight(cp.BurnerAddress)

	nonce, err := noncechain.DeriveAtIndex(seed, cp.BurnerNonceIndex)
	if err != nil {
		return err
	}
	nonce.OwnerHash = o.ownerHash

	kp, err := burner.DeriveSpendingBurner(seed, nonce)
	if err != nil {
		return err
	}
	defer burner.Clear(kp)

	// The live balance may differ from the checkpoint by now.
	bal, err := o.pool.Balance(ctx, cp.BurnerAddress)
	if err != nil {
		o.metrics.RecoveryOutcome("failed")
		return fmt.Errorf("pool balance during recovery: %w", err)
	}
	if bal == 0 {
		o.mu.Lock()
		o.checkpoint = nil
		o.state = StateIdle
		o.mu.Unlock()
		o.metrics.RecoveryOutcome("impossible")
		return ErrRecoveryImpossible
	}

	if _, err := o.pool.PrivateTransfer(ctx, cp.BurnerAddress, o.stableAddr, bal); err != nil {
		o.metrics.RecoveryOutcome("failed")
		return fmt.Errorf("%w: recovery transfer: %v", ErrTransferFailed, err)
	}

	if err := o.rotate(ctx, kp); err != nil {
		return err
	}
	o.metrics.RecoveryOutcome("success")
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Status reports the current settlement state.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CurrentBurner returns the current spending burner, nil before Init.
func (o *Orchestrator) CurrentBurner() *model.BurnerKeyPair {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cur
}

// PendingApprovalInfo returns a copy of the parked manual-mode
// observation, nil when none is waiting.
func (o *Orchestrator) PendingApprovalInfo() *PendingApproval {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.approval == nil {
		return nil
	}
	cp := *o.approval
	return &cp
}

// PendingSweepInfo returns a copy of the recovery checkpoint, nil when no
// settlement is awaiting recovery.
func (o *Orchestrator) PendingSweepInfo() *model.PendingSweep {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.checkpoint == nil {
		return nil
	}
	cp := *o.checkpoint
	return &cp
}
