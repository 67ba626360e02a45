package burner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"veilpay/internal/noncechain"
)

func TestDeriveSpendingBurner_Deterministic(t *testing.T) {
	seed := noncechain.NewMasterSeed([]byte("sig"))
	nonce, err := noncechain.DeriveAtIndex(seed, 5)
	require.NoError(t, err)

	a, err := DeriveSpendingBurner(seed, nonce)
	require.NoError(t, err)
	b, err := DeriveSpendingBurner(seed, nonce)
	require.NoError(t, err)

	require.Equal(t, a.Address, b.Address)
	require.Equal(t, a.SecretKey, b.SecretKey)
	require.Equal(t, uint32(5), a.NonceIndex)
}

func TestDeriveSpendingBurner_UniquePerIndex(t *testing.T) {
	seed := noncechain.NewMasterSeed([]byte("sig"))

	seen := make(map[string]uint32)
	for i := uint32(1); i <= 50; i++ {
		nonce, err := noncechain.DeriveAtIndex(seed, i)
		require.NoError(t, err)

		kp, err := DeriveSpendingBurner(seed, nonce)
		require.NoError(t, err)

		prev, dup := seen[kp.Address]
		require.False(t, dup, "index %d collides with index %d", i, prev)
		seen[kp.Address] = i
	}
}

func TestDerive_RoleTagsSeparateKeys(t *testing.T) {
	seed := noncechain.NewMasterSeed([]byte("sig"))
	nonce0, err := noncechain.DeriveAtIndex(seed, 0)
	require.NoError(t, err)

	stable, err := DeriveStableAddress(seed, nonce0)
	require.NoError(t, err)

	// Same seed and nonce under the spending tag must give a different
	// key. Compare via the private derive since the public constructor
	// rejects index 0.
	spending, err := derive(seed, nonce0, RoleTagSpending)
	require.NoError(t, err)
	require.NotEqual(t, stable.Address, spending.Address)
}

func TestDerive_IndexZeroReserved(t *testing.T) {
	seed := noncechain.NewMasterSeed([]byte("sig"))

	nonce0, err := noncechain.DeriveAtIndex(seed, 0)
	require.NoError(t, err)
	nonce1, err := noncechain.DeriveAtIndex(seed, 1)
	require.NoError(t, err)

	_, err = DeriveSpendingBurner(seed, nonce0)
	require.Error(t, err)

	_, err = DeriveStableAddress(seed, nonce1)
	require.Error(t, err)
}

func TestDerive_RejectsBadSeed(t *testing.T) {
	nonce, err := noncechain.DeriveAtIndex(noncechain.NewMasterSeed([]byte("sig")), 1)
	require.NoError(t, err)

	_, err = DeriveSpendingBurner([]byte("short"), nonce)
	require.Error(t, err)
}

func TestClear_WipesSecretKeepsAddress(t *testing.T) {
	seed := noncechain.NewMasterSeed([]byte("sig"))
	nonce, err := noncechain.DeriveAtIndex(seed, 3)
	require.NoError(t, err)

	kp, err := DeriveSpendingBurner(seed, nonce)
	require.NoError(t, err)
	addr := kp.Address

	Clear(kp)

	require.Nil(t, kp.SecretKey)
	require.Equal(t, addr, kp.Address)
	require.Equal(t, addr, kp.PublicKey.String())

	// Must be safe to call again and on nil.
	Clear(kp)
	Clear(nil)
}
