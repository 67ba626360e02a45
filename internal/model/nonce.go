package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// OwnerHashLen is the number of hex characters kept from the hashed wallet
// public identity. The truncated hash is an opaque storage key only; it must
// stay non-reversible and carry no recoverable identity information.
const OwnerHashLen = 16

// Nonce is one link of the per-wallet hash chain. Index 0 is reserved for
// the stable private-balance address and must never back a spending burner.
type Nonce struct {
	Value     [32]byte
	Index     uint32
	OwnerHash string
}

// OwnerHash derives the opaque storage key for a wallet's public identity.
func OwnerHash(walletPublicID []byte) string {
	sum := sha256.Sum256(walletPublicID)
	return hex.EncodeToString(sum[:])[:OwnerHashLen]
}
