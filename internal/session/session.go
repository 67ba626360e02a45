// Package session owns the wallet lifecycle: deriving the master seed from
// the wallet signature, locating or provisioning the persisted nonce state,
// and running the settlement orchestrator until the session is destroyed.
// Everything a session holds is re-derivable from the signature, so
// destroying a session loses nothing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"veilpay/internal/burner"
	"veilpay/internal/discovery"
	"veilpay/internal/model"
	"veilpay/internal/noncechain"
	"veilpay/internal/secret"
	"veilpay/internal/store"
	"veilpay/internal/sweep"
)

var (
	// ErrNotActive is returned when an operation needs an initialized,
	// undestroyed session.
	ErrNotActive = errors.New("session not active")

	// ErrAlreadyActive is returned when Init is called twice.
	ErrAlreadyActive = errors.New("session already initialized")
)

// State is the session lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// SessionMessage is the fixed message the wallet's signing oracle signs to
// open a session. An interop constant: changing it changes every derived
// seed and orphans existing wallets.
const SessionMessage = "veilpay/session/v1"

// Signer is the external signing oracle backed by the user's primary key.
// Sign must be deterministic: the same message must always produce the
// same signature, or the wallet cannot be re-derived.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// ChainOracle is the ledger view a session needs: live balances for
// settlement re-quotes and activity checks for recovery scanning.
type ChainOracle interface {
	Balance(ctx context.Context, address string) (uint64, error)
	HasActivity(ctx context.Context, address string) (bool, error)
}

// Deps are the shared collaborators a session is built from. One set
// serves every session; nothing here carries per-wallet key material.
type Deps struct {
	Local    *store.Store
	Remote   sweep.RemoteStore
	Pool     sweep.PoolService
	Chain    ChainOracle
	Sweep    sweep.Config
	GapLimit int
	Metrics  sweep.Metrics
	Log      zerolog.Logger
}

// Session is one wallet's live context. It owns the master seed and wipes
// it on Destroy; the derived storage cipher and current burner die with it.
type Session struct {
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	state      State
	walletID   string
	seed       *secret.Buffer
	cipher     *store.Cipher
	stableAddr string
	orch       *sweep.Orchestrator
}

// New returns an uninitialized session.
func New(deps Deps) *Session {
	return &Session{deps: deps, log: deps.Log.With().Str("component", "session").Logger()}
}

// InitWithSigner obtains the session signature from the signing oracle and
// initializes the session with it.
func (s *Session) InitWithSigner(ctx context.Context, signer Signer, walletPublicID []byte) (*model.InitResponse, error) {
	signature, err := signer.Sign([]byte(SessionMessage))
	if err != nil {
		return nil, fmt.Errorf("signing oracle failed: %w", err)
	}
	defer secret.Wipe(signature)
	return s.Init(ctx, signature, walletPublicID)
}

// Init derives the wallet's key material from the signature and brings the
// session to Active. State is resolved in priority order: the local
// encrypted record, then trial decryption of the remote blobs, then an
// on-chain recovery scan, and finally fresh provisioning at index 1.
func (s *Session) Init(ctx context.Context, signature, walletPublicID []byte) (*model.InitResponse, error) {
	if len(signature) == 0 {
		return nil, errors.New("signature is required")
	}
	if len(walletPublicID) == 0 {
		return nil, errors.New("wallet public id is required")
	}

	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	s.mu.Unlock()

	seed := secret.NewBuffer(noncechain.NewMasterSeed(signature))
	ownerHash := model.OwnerHash(walletPublicID)
	log := s.log.With().Str("wallet", ownerHash).Logger()

	nonce0, err := noncechain.DeriveAtIndex(seed.Bytes(), 0)
	if err != nil {
		seed.Wipe()
		return nil, err
	}
	nonce0.OwnerHash = ownerHash

	stable, err := burner.DeriveStableAddress(seed.Bytes(), nonce0)
	if err != nil {
		seed.Wipe()
		return nil, err
	}
	stableAddr := stable.Address
	// The stable secret key is only needed for outbound spending, which
	// this service never does. Drop it immediately.
	burner.Clear(stable)

	key, err := store.StorageKeyFromSeed(seed.Bytes())
	if err != nil {
		seed.Wipe()
		return nil, err
	}
	cipher, err := store.NewCipher(key)
	secret.Wipe(key)
	if err != nil {
		seed.Wipe()
		return nil, err
	}

	nonce, remoteID, err := s.resolveState(ctx, log, seed.Bytes(), cipher, ownerHash)
	if err != nil {
		seed.Wipe()
		return nil, err
	}

	orch := sweep.New(s.deps.Pool, s.deps.Chain, s.deps.Local, cipher, s.deps.Remote, s.deps.Sweep, log, s.deps.Metrics)
	if err := orch.Init(ctx, seed.Bytes(), ownerHash, stableAddr, nonce, remoteID); err != nil {
		if !errors.Is(err, sweep.ErrTransferFailed) {
			seed.Wipe()
			return nil, fmt.Errorf("settlement init failed: %w", err)
		}
		// The leftover-funds sweep exhausted its transfer budget. The
		// funds stay checkpointed in the pool, so the session comes up
		// with recovery pending instead of refusing to start.
		log.Warn().Err(err).Msg("leftover pool sweep failed at init, recovery pending")
	}

	cur := orch.CurrentBurner()

	s.mu.Lock()
	s.state = StateActive
	s.walletID = ownerHash
	s.seed = seed
	s.cipher = cipher
	s.stableAddr = stableAddr
	s.orch = orch
	s.mu.Unlock()

	log.Info().Uint32("index", cur.NonceIndex).Msg("session initialized")

	return &model.InitResponse{
		WalletID:       ownerHash,
		StableAddress:  stableAddr,
		CurrentAddress: cur.Address,
		NonceIndex:     cur.NonceIndex,
	}, nil
}

// resolveState finds the wallet's current spending nonce and, when known,
// the id of its remote record.
func (s *Session) resolveState(ctx context.Context, log zerolog.Logger, seed []byte, cipher *store.Cipher, ownerHash string) (model.Nonce, string, error) {
	local := s.loadLocal(log, cipher, ownerHash)
	remote, remoteListed := s.loadRemote(ctx, log, cipher, local != nil)

	switch {
	case local != nil && remote != nil:
		// Higher index wins; ties go to local. A stale remote record is
		// replaced so a later device does not resurrect an old nonce.
		if remote.State.NonceIndex > local.NonceIndex {
			log.Info().Uint32("local", local.NonceIndex).Uint32("remote", remote.State.NonceIndex).
				Msg("remote state is ahead, adopting")
			if err := s.deps.Local.Put(cipher, ownerHash, remote.State); err != nil {
				return model.Nonce{}, "", err
			}
			return remote.State.Nonce(ownerHash), remote.ID, nil
		}
		if remote.State.NonceIndex < local.NonceIndex {
			log.Warn().Uint32("local", local.NonceIndex).Uint32("remote", remote.State.NonceIndex).
				Msg("remote state is stale, re-uploading")
			id := s.uploadState(ctx, log, cipher, *local, remote.ID)
			return local.Nonce(ownerHash), id, nil
		}
		return local.Nonce(ownerHash), remote.ID, nil

	case local != nil:
		var id string
		if remoteListed {
			log.Info().Msg("no remote record found, re-uploading local state")
			id = s.uploadState(ctx, log, cipher, *local, "")
		}
		return local.Nonce(ownerHash), id, nil

	case remote != nil:
		log.Info().Uint32("index", remote.State.NonceIndex).Msg("recovered state from remote record")
		if err := s.deps.Local.Put(cipher, ownerHash, remote.State); err != nil {
			return model.Nonce{}, "", err
		}
		return remote.State.Nonce(ownerHash), remote.ID, nil
	}

	return s.provision(ctx, log, seed, cipher, ownerHash)
}

// loadLocal reads the local record. An undecryptable or corrupted local
// record is treated as missing: the remote mirror and the chain scan exist
// precisely to survive local damage.
func (s *Session) loadLocal(log zerolog.Logger, cipher *store.Cipher, ownerHash string) *model.PersistedNonceState {
	state, err := s.deps.Local.Get(cipher, ownerHash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("local state unreadable, falling back to remote")
		}
		return nil
	}
	return state
}

// loadRemote lists the remote blobs and trial-decrypts them. The second
// return reports whether the listing itself succeeded, which decides
// whether a missing record means "not there" or "could not look".
func (s *Session) loadRemote(ctx context.Context, log zerolog.Logger, cipher *store.Cipher, haveLocal bool) (*discovery.Result, bool) {
	blobs, err := s.deps.Remote.ListAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("remote record listing failed")
		return nil, false
	}

	result, err := discovery.New(cipher, log).FindOwned(blobs)
	if err != nil {
		// An owned-but-damaged remote record is fatal only when there is
		// no local state to fall back to.
		if haveLocal {
			log.Warn().Err(err).Msg("remote state damaged, continuing on local state")
			return nil, true
		}
		log.Error().Err(err).Msg("remote state damaged and no local state exists")
		return nil, false
	}
	if !result.Found {
		return nil, true
	}
	return &result, true
}

// provision handles the no-state-anywhere case: scan the chain for burners
// this seed has already used, and only if none turn up treat the wallet as
// brand new.
func (s *Session) provision(ctx context.Context, log zerolog.Logger, seed []byte, cipher *store.Cipher, ownerHash string) (model.Nonce, string, error) {
	found, err := burner.RecoverByScanning(ctx, seed, s.deps.Chain, math.MaxUint32, s.deps.GapLimit)
	if err != nil {
		return model.Nonce{}, "", fmt.Errorf("recovery scan failed: %w", err)
	}

	var highest uint32
	for _, kp := range found {
		if kp.NonceIndex > highest {
			highest = kp.NonceIndex
		}
		burner.Clear(kp)
	}

	var nonce model.Nonce
	if highest >= 1 {
		// Resume at the highest used index: that burner was already
		// exposed and may still receive funds, so it stays current until
		// the next settlement rotates past it.
		log.Info().Uint32("index", highest).Msg("state reconstructed by chain scan")
		nonce, err = noncechain.DeriveAtIndex(seed, highest)
	} else {
		log.Info().Msg("no prior state found, provisioning fresh wallet")
		n0, derr := noncechain.DeriveAtIndex(seed, 0)
		if derr != nil {
			return model.Nonce{}, "", derr
		}
		nonce, err = noncechain.Advance(n0)
	}
	if err != nil {
		return model.Nonce{}, "", err
	}
	nonce.OwnerHash = ownerHash

	state := model.PersistedNonceState{NonceValue: nonce.Value, NonceIndex: nonce.Index}
	if err := s.deps.Local.Put(cipher, ownerHash, state); err != nil {
		return model.Nonce{}, "", err
	}
	id := s.uploadState(ctx, log, cipher, state, "")

	return nonce, id, nil
}

// uploadState mirrors a state record remotely, best-effort. staleID, when
// set, names a superseded record to delete after the new one lands.
func (s *Session) uploadState(ctx context.Context, log zerolog.Logger, cipher *store.Cipher, state model.PersistedNonceState, staleID string) string {
	plaintext, err := json.Marshal(state)
	if err != nil {
		log.Warn().Err(err).Msg("remote upload skipped, state marshal failed")
		return ""
	}
	defer secret.Wipe(plaintext)

	blob, err := cipher.Seal(plaintext)
	if err != nil {
		log.Warn().Err(err).Msg("remote upload skipped, seal failed")
		return ""
	}

	id, err := s.deps.Remote.Create(ctx, blob)
	if err != nil {
		log.Warn().Err(err).Msg("remote record upload failed, continuing on local state")
		return ""
	}
	if staleID != "" {
		if _, err := s.deps.Remote.Delete(ctx, staleID); err != nil {
			log.Warn().Err(err).Str("record", staleID).Msg("stale remote record delete failed")
		}
	}
	return id
}

// Destroy wipes the master seed and the current burner key and retires the
// session. All persisted state survives; the wallet is fully recoverable
// from its signature.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrNotActive
	}

	s.orch.Shutdown()
	s.seed.Wipe()
	s.seed = nil
	s.cipher = nil
	s.orch = nil
	s.state = StateDestroyed

	s.log.Info().Str("wallet", s.walletID).Msg("session destroyed")
	return nil
}

// WalletID returns the session's opaque wallet identifier.
func (s *Session) WalletID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletID
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StableAddress returns the wallet's private-balance address.
func (s *Session) StableAddress() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return "", ErrNotActive
	}
	return s.stableAddr, nil
}

// CurrentAddress returns the current spending burner's address and index.
func (s *Session) CurrentAddress() (string, uint32, error) {
	orch, err := s.active()
	if err != nil {
		return "", 0, err
	}
	cur := orch.CurrentBurner()
	if cur == nil {
		return "", 0, sweep.ErrNotReady
	}
	return cur.Address, cur.NonceIndex, nil
}

// Observe forwards a balance observation to the orchestrator.
func (s *Session) Observe(ctx context.Context, address string, lamports uint64) error {
	orch, err := s.active()
	if err != nil {
		return err
	}
	return orch.ObserveBalance(ctx, address, lamports)
}

// Approve resumes a manual-mode settlement.
func (s *Session) Approve(ctx context.Context, lamports uint64) error {
	orch, err := s.active()
	if err != nil {
		return err
	}
	return orch.Approve(ctx, lamports)
}

// Recover resumes an interrupted settlement from its checkpoint.
func (s *Session) Recover(ctx context.Context) error {
	orch, err := s.active()
	if err != nil {
		return err
	}
	return orch.RecoverPendingSweep(ctx)
}

// Settlement reports the orchestrator's state plus any pending checkpoint
// or approval.
func (s *Session) Settlement() (sweep.State, *model.PendingSweep, *sweep.PendingApproval, error) {
	orch, err := s.active()
	if err != nil {
		return 0, nil, nil, err
	}
	return orch.Status(), orch.PendingSweepInfo(), orch.PendingApprovalInfo(), nil
}

func (s *Session) active() (*sweep.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, ErrNotActive
	}
	return s.orch, nil
}
