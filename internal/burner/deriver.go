// Package burner deterministically derives single-use keypairs from the
// wallet master seed and the nonce chain. Index 0 derives the stable
// private-balance address under its own role tag; every index >= 1 derives
// a spending burner. Identical (seed, nonce) inputs always yield identical
// keys, which is what makes every burner re-derivable from the signing key.
package burner

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"veilpay/internal/model"
	"veilpay/internal/noncechain"
	"veilpay/internal/secret"
)

// Role tags separate stable-address derivation from spending-burner
// derivation. Like the master-seed tag, these are interop constants.
const (
	RoleTagStable   = "veilpay/stable/v1"
	RoleTagSpending = "veilpay/burner/v1"
)

// DeriveStableAddress derives the index-0 keypair backing the wallet's
// private settled balance. The nonce must be the reserved index-0 link.
func DeriveStableAddress(masterSeed []byte, nonce0 model.Nonce) (*model.BurnerKeyPair, error) {
	if nonce0.Index != 0 {
		return nil, fmt.Errorf("stable address requires nonce index 0, got %d", nonce0.Index)
	}
	return derive(masterSeed, nonce0, RoleTagStable)
}

// DeriveSpendingBurner derives a public-facing receiving keypair. The
// reserved index-0 nonce is rejected so stable-address keys can never leak
// into settlement flows.
func DeriveSpendingBurner(masterSeed []byte, nonce model.Nonce) (*model.BurnerKeyPair, error) {
	if nonce.Index == 0 {
		return nil, fmt.Errorf("nonce index 0 is reserved for the stable address")
	}
	return derive(masterSeed, nonce, RoleTagSpending)
}

func derive(masterSeed []byte, nonce model.Nonce, roleTag string) (*model.BurnerKeyPair, error) {
	if len(masterSeed) != noncechain.SeedLen {
		return nil, fmt.Errorf("master seed must be %d bytes, got %d", noncechain.SeedLen, len(masterSeed))
	}

	h := sha256.New()
	h.Write(masterSeed)
	h.Write(nonce.Value[:])
	h.Write([]byte(roleTag))
	seed := h.Sum(nil)
	defer secret.Wipe(seed)

	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	pub := priv.PublicKey()

	return &model.BurnerKeyPair{
		PublicKey:  pub,
		SecretKey:  priv,
		Address:    pub.String(),
		Nonce:      nonce.Value,
		NonceIndex: nonce.Index,
	}, nil
}

// Clear wipes the secret key in place. Address and public key stay intact
// so callers can keep displaying the address after the key is gone.
func Clear(kp *model.BurnerKeyPair) {
	if kp == nil {
		return
	}
	secret.Wipe(kp.SecretKey)
	kp.SecretKey = nil
}
