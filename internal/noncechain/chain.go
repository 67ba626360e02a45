// Package noncechain produces the deterministic hash chain backing burner
// derivation. The chain is one-way: nonce[0] = H(masterSeed) and
// nonce[i] = H(nonce[i-1]), so any index can be re-derived forever from the
// signing key alone, while published nonces reveal nothing about earlier
// ones.
package noncechain

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"veilpay/internal/model"
)

// DomainTagMasterSeed separates master-seed derivation from any other use
// of the wallet signature. The tag is part of the interop contract: a
// wallet provisioned by one implementation must re-derive byte-identical
// seeds on another.
const DomainTagMasterSeed = "veilpay/master-seed/v1"

// SeedLen is the required master seed length in bytes.
const SeedLen = 32

// ErrOverflow is returned when the nonce index space is exhausted. This is
// fatal for the wallet's further use; the index must never silently wrap.
var ErrOverflow = errors.New("nonce index space exhausted")

// NewMasterSeed derives the 32-byte master seed from a wallet signature.
// The signature must come from a deterministic signing oracle over the
// fixed session message, otherwise the wallet is not recoverable.
func NewMasterSeed(signature []byte) []byte {
	h := sha256.New()
	h.Write(signature)
	h.Write([]byte(DomainTagMasterSeed))
	return h.Sum(nil)
}

// DeriveAtIndex computes the chain link at the given index by hashing
// forward from the seed. It is pure and side-effect-free; calling it twice
// with the same inputs always yields identical bytes.
func DeriveAtIndex(masterSeed []byte, index uint32) (model.Nonce, error) {
	if len(masterSeed) != SeedLen {
		return model.Nonce{}, fmt.Errorf("master seed must be %d bytes, got %d", SeedLen, len(masterSeed))
	}

	value := sha256.Sum256(masterSeed)
	for i := uint32(0); i < index; i++ {
		value = sha256.Sum256(value[:])
	}

	return model.Nonce{Value: value, Index: index}, nil
}

// Advance computes the next chain link. It is the only index-incrementing
// primitive; the caller is responsible for persisting the result before
// exposing the derived burner.
func Advance(current model.Nonce) (model.Nonce, error) {
	if current.Index == math.MaxUint32 {
		return model.Nonce{}, ErrOverflow
	}

	return model.Nonce{
		Value:     sha256.Sum256(current.Value[:]),
		Index:     current.Index + 1,
		OwnerHash: current.OwnerHash,
	}, nil
}
