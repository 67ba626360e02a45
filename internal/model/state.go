package model

import "time"

// PersistedNonceState is the single current spending nonce for one wallet.
// It is what gets encrypted at rest locally and mirrored to the remote
// store. The index only ever moves forward for the lifetime of the wallet.
type PersistedNonceState struct {
	NonceValue [32]byte `json:"nonceValue"`
	NonceIndex uint32   `json:"nonceIndex"`
}

// Nonce rebuilds the chain link described by the persisted state.
func (s PersistedNonceState) Nonce(ownerHash string) Nonce {
	return Nonce{Value: s.NonceValue, Index: s.NonceIndex, OwnerHash: ownerHash}
}

// PendingSweep is the volatile checkpoint for a settlement interrupted
// between the pooling step and the final transfer. It deliberately excludes
// the burner secret key: recovery re-derives it from the nonce index.
type PendingSweep struct {
	BurnerAddress    string
	BurnerNonceIndex uint32
	PoolBalance      uint64
	Timestamp        time.Time
}
