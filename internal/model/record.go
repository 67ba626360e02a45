package model

import "time"

// EncryptedRecord is the local at-rest form of a state record. IV and
// ciphertext are kept as separate fields in the on-disk JSON framing.
type EncryptedRecord struct {
	ID         string    `json:"id"`
	IV         []byte    `json:"iv"`
	Ciphertext []byte    `json:"cipherText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RemoteRecord is the mirrored form held by the untrusted remote store.
// Blob is self-describing: a one-byte version tag followed by IV and
// ciphertext. The ID is assigned by the backend and carries no meaning.
type RemoteRecord struct {
	ID        string    `json:"id"`
	Blob      []byte    `json:"encryptedBlob"`
	CreatedAt time.Time `json:"createdAt"`
}
