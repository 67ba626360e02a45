package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"veilpay/internal/burner"
	"veilpay/internal/client"
	"veilpay/internal/model"
	"veilpay/internal/noncechain"
	"veilpay/internal/retry"
	"veilpay/internal/store"
	"veilpay/internal/sweep"
)

var (
	testSignature = []byte("deterministic signature over the session message")
	testWalletID  = []byte("wallet-public-id")
)

// stubPool accepts everything and pools nothing.
type stubPool struct{}

func (stubPool) Deposit(ctx context.Context, address string, lamports uint64) (string, error) {
	return "r", nil
}
func (stubPool) Balance(ctx context.Context, address string) (uint64, error) { return 0, nil }
func (stubPool) PrivateTransfer(ctx context.Context, from, to string, lamports uint64) (string, error) {
	return "r", nil
}

// stuckPool reports a leftover pooled balance for one address and fails
// every transfer out of it.
type stuckPool struct {
	stubPool
	address string
}

func (p *stuckPool) Balance(ctx context.Context, address string) (uint64, error) {
	if address == p.address {
		return 4200, nil
	}
	return 0, nil
}

func (p *stuckPool) PrivateTransfer(ctx context.Context, from, to string, lamports uint64) (string, error) {
	return "", errors.New("pool unreachable")
}

// stubChain reports activity for a fixed address set and no balances.
type stubChain struct {
	active map[string]bool
}

func (c *stubChain) Balance(ctx context.Context, address string) (uint64, error) { return 0, nil }
func (c *stubChain) HasActivity(ctx context.Context, address string) (bool, error) {
	return c.active[address], nil
}

func testDeps(t *testing.T, dir string) Deps {
	t.Helper()
	local, err := store.New(dir)
	require.NoError(t, err)

	policy := retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}
	return Deps{
		Local:  local,
		Remote: client.NewMemoryBlobStore(),
		Pool:   stubPool{},
		Chain:  &stubChain{active: map[string]bool{}},
		Sweep: sweep.Config{
			Threshold: 1000,
			FeeBuffer: 100,
			Deposit:   policy,
			Verify:    policy,
			Transfer:  policy,
			Mode:      sweep.ModeAuto,
		},
		GapLimit: 5,
		Log:      zerolog.Nop(),
	}
}

// walletCipher derives the same storage cipher a session would, for
// seeding state out of band.
func walletCipher(t *testing.T) *store.Cipher {
	t.Helper()
	key, err := store.StorageKeyFromSeed(noncechain.NewMasterSeed(testSignature))
	require.NoError(t, err)
	c, err := store.NewCipher(key)
	require.NoError(t, err)
	return c
}

func stateAt(t *testing.T, index uint32) model.PersistedNonceState {
	t.Helper()
	nonce, err := noncechain.DeriveAtIndex(noncechain.NewMasterSeed(testSignature), index)
	require.NoError(t, err)
	return model.PersistedNonceState{NonceValue: nonce.Value, NonceIndex: nonce.Index}
}

func addressAt(t *testing.T, index uint32) string {
	t.Helper()
	seed := noncechain.NewMasterSeed(testSignature)
	nonce, err := noncechain.DeriveAtIndex(seed, index)
	require.NoError(t, err)

	if index == 0 {
		kp, err := burner.DeriveStableAddress(seed, nonce)
		require.NoError(t, err)
		defer burner.Clear(kp)
		return kp.Address
	}
	kp, err := burner.DeriveSpendingBurner(seed, nonce)
	require.NoError(t, err)
	defer burner.Clear(kp)
	return kp.Address
}

func TestInit_FreshWallet(t *testing.T) {
	deps := testDeps(t, t.TempDir())
	sess := New(deps)

	resp, err := sess.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	require.Equal(t, model.OwnerHash(testWalletID), resp.WalletID)
	require.Equal(t, uint32(1), resp.NonceIndex, "fresh wallets start past the reserved index")
	require.Equal(t, addressAt(t, 0), resp.StableAddress)
	require.Equal(t, addressAt(t, 1), resp.CurrentAddress)
	require.Equal(t, StateActive, sess.State())

	// Provisioning persisted locally and mirrored remotely.
	state, err := deps.Local.Get(walletCipher(t), resp.WalletID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), state.NonceIndex)
	require.Equal(t, 1, deps.Remote.(*client.MemoryBlobStore).Len())
}

// fakeSigner deterministically "signs" by echoing a fixed signature, the
// way a real oracle must for the wallet to be re-derivable.
type fakeSigner struct {
	gotMsg []byte
}

func (s *fakeSigner) Sign(msg []byte) ([]byte, error) {
	s.gotMsg = msg
	sig := make([]byte, len(testSignature))
	copy(sig, testSignature)
	return sig, nil
}

func TestInitWithSigner_MatchesDirectInit(t *testing.T) {
	direct, err := New(testDeps(t, t.TempDir())).Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	signer := &fakeSigner{}
	viaSigner, err := New(testDeps(t, t.TempDir())).InitWithSigner(context.Background(), signer, testWalletID)
	require.NoError(t, err)

	require.Equal(t, []byte(SessionMessage), signer.gotMsg)
	require.Equal(t, direct.CurrentAddress, viaSigner.CurrentAddress)
	require.Equal(t, direct.StableAddress, viaSigner.StableAddress)
}

func TestInit_LeftoverSweepFailureStaysRecoverable(t *testing.T) {
	deps := testDeps(t, t.TempDir())
	// A previous run left funds pooled for the index-1 burner and the
	// pool refuses every transfer out of it.
	deps.Pool = &stuckPool{address: addressAt(t, 1)}

	sess := New(deps)
	resp, err := sess.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err, "a failed leftover sweep must not refuse the session")
	require.Equal(t, StateActive, sess.State())

	state, pending, _, err := sess.Settlement()
	require.NoError(t, err)
	require.Equal(t, sweep.StatePendingRecovery, state)
	require.NotNil(t, pending)
	require.Equal(t, resp.CurrentAddress, pending.BurnerAddress)
	require.Equal(t, uint64(4200), pending.PoolBalance)
}

func TestInit_RejectsEmptyInputs(t *testing.T) {
	sess := New(testDeps(t, t.TempDir()))

	_, err := sess.Init(context.Background(), nil, testWalletID)
	require.Error(t, err)

	_, err = sess.Init(context.Background(), testSignature, nil)
	require.Error(t, err)
}

func TestInit_Twice(t *testing.T) {
	sess := New(testDeps(t, t.TempDir()))

	_, err := sess.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	_, err = sess.Init(context.Background(), testSignature, testWalletID)
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func TestInit_ResumesFromLocalState(t *testing.T) {
	dir := t.TempDir()
	deps := testDeps(t, dir)

	// First run provisions; destroy simulates a process exit.
	sess := New(deps)
	first, err := sess.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)
	require.NoError(t, sess.Destroy())

	sess2 := New(deps)
	second, err := sess2.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	require.Equal(t, first.CurrentAddress, second.CurrentAddress)
	require.Equal(t, first.StableAddress, second.StableAddress)
	require.Equal(t, first.NonceIndex, second.NonceIndex)
}

func TestInit_RecoversFromRemoteOnly(t *testing.T) {
	deps := testDeps(t, t.TempDir())

	// Another device advanced the wallet to index 5; this device has no
	// local state at all. Decoys belong to other wallets.
	payload, err := json.Marshal(stateAt(t, 5))
	require.NoError(t, err)
	blob, err := walletCipher(t).Seal(payload)
	require.NoError(t, err)
	_, err = deps.Remote.Create(context.Background(), blob)
	require.NoError(t, err)

	otherKey, err := store.StorageKeyFromSeed(noncechain.NewMasterSeed([]byte("other wallet")))
	require.NoError(t, err)
	otherCipher, err := store.NewCipher(otherKey)
	require.NoError(t, err)
	decoy, err := otherCipher.Seal([]byte(`{"nonceIndex":99}`))
	require.NoError(t, err)
	_, err = deps.Remote.Create(context.Background(), decoy)
	require.NoError(t, err)

	resp, err := New(deps).Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	require.Equal(t, uint32(5), resp.NonceIndex)
	require.Equal(t, addressAt(t, 5), resp.CurrentAddress)

	// Adopted state is now persisted locally too.
	state, err := deps.Local.Get(walletCipher(t), resp.WalletID)
	require.NoError(t, err)
	require.Equal(t, uint32(5), state.NonceIndex)
}

func TestInit_LocalAheadOfRemote(t *testing.T) {
	deps := testDeps(t, t.TempDir())
	owner := model.OwnerHash(testWalletID)
	cipher := walletCipher(t)

	require.NoError(t, deps.Local.Put(cipher, owner, stateAt(t, 7)))

	payload, err := json.Marshal(stateAt(t, 3))
	require.NoError(t, err)
	blob, err := cipher.Seal(payload)
	require.NoError(t, err)
	staleID, err := deps.Remote.Create(context.Background(), blob)
	require.NoError(t, err)

	resp, err := New(deps).Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)
	require.Equal(t, uint32(7), resp.NonceIndex)
	require.Equal(t, addressAt(t, 7), resp.CurrentAddress,
		"resumed nonce must re-derive the exact same burner")

	// The stale remote record was replaced, not duplicated.
	mem := deps.Remote.(*client.MemoryBlobStore)
	require.Equal(t, 1, mem.Len())
	records, err := mem.ListAll(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, staleID, records[0].ID)
}

func TestInit_RemoteAheadOfLocal(t *testing.T) {
	deps := testDeps(t, t.TempDir())
	owner := model.OwnerHash(testWalletID)
	cipher := walletCipher(t)

	require.NoError(t, deps.Local.Put(cipher, owner, stateAt(t, 2)))

	payload, err := json.Marshal(stateAt(t, 6))
	require.NoError(t, err)
	blob, err := cipher.Seal(payload)
	require.NoError(t, err)
	_, err = deps.Remote.Create(context.Background(), blob)
	require.NoError(t, err)

	resp, err := New(deps).Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)
	require.Equal(t, uint32(6), resp.NonceIndex)

	state, err := deps.Local.Get(cipher, owner)
	require.NoError(t, err)
	require.Equal(t, uint32(6), state.NonceIndex)
}

func TestInit_ReconstructsByChainScan(t *testing.T) {
	deps := testDeps(t, t.TempDir())

	// No state anywhere, but the chain shows this seed's burners were
	// used up to index 3.
	deps.Chain.(*stubChain).active = map[string]bool{
		addressAt(t, 0): true,
		addressAt(t, 1): true,
		addressAt(t, 3): true,
	}

	resp, err := New(deps).Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	require.Equal(t, uint32(3), resp.NonceIndex)
	require.Equal(t, addressAt(t, 3), resp.CurrentAddress)

	state, err := deps.Local.Get(walletCipher(t), resp.WalletID)
	require.NoError(t, err)
	require.Equal(t, uint32(3), state.NonceIndex)
}

func TestDestroy_Lifecycle(t *testing.T) {
	sess := New(testDeps(t, t.TempDir()))

	require.ErrorIs(t, sess.Destroy(), ErrNotActive)

	_, err := sess.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	require.NoError(t, sess.Destroy())
	require.Equal(t, StateDestroyed, sess.State())

	_, _, err = sess.CurrentAddress()
	require.ErrorIs(t, err, ErrNotActive)
	require.ErrorIs(t, sess.Observe(context.Background(), "a", 1), ErrNotActive)
	require.ErrorIs(t, sess.Destroy(), ErrNotActive)
}

func TestRegistry_InitDestroyCycle(t *testing.T) {
	reg := NewRegistry(testDeps(t, t.TempDir()))

	resp, err := reg.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	_, err = reg.Init(context.Background(), testSignature, testWalletID)
	require.ErrorIs(t, err, ErrAlreadyActive)

	sess, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, resp.WalletID, sess.WalletID())

	require.NoError(t, reg.Destroy(resp.WalletID))
	require.ErrorIs(t, reg.Destroy(resp.WalletID), ErrNoSession)

	// Destroyed wallets can come back.
	again, err := reg.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)
	require.Equal(t, resp.CurrentAddress, again.CurrentAddress)
}

func TestRegistry_ResolveNeedsDisambiguation(t *testing.T) {
	reg := NewRegistry(testDeps(t, t.TempDir()))

	_, err := reg.Resolve("")
	require.ErrorIs(t, err, ErrNoSession)

	_, err = reg.Init(context.Background(), testSignature, testWalletID)
	require.NoError(t, err)

	_, err = reg.Init(context.Background(), []byte("another signature"), []byte("another wallet"))
	require.NoError(t, err)

	_, err = reg.Resolve("")
	require.ErrorIs(t, err, ErrNoSession, "two sessions need an explicit wallet id")

	sess, err := reg.Resolve(model.OwnerHash(testWalletID))
	require.NoError(t, err)
	require.Equal(t, model.OwnerHash(testWalletID), sess.WalletID())
}
