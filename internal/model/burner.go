package model

import "github.com/gagliardetto/solana-go"

// BurnerKeyPair is a deterministically derived keypair plus its backing
// nonce. SecretKey is caller-owned: it must be wiped via burner.Clear once
// the settlement that needed it completes or is abandoned, and must never be
// retained longer than one settlement step.
type BurnerKeyPair struct {
	PublicKey  solana.PublicKey
	SecretKey  solana.PrivateKey
	Address    string
	Nonce      [32]byte
	NonceIndex uint32
}
