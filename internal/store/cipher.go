// Package store provides the authenticated-encryption-at-rest layer for
// wallet state records, with per-key mutual exclusion so unrelated wallets
// never contend.
package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// blobVersion tags the self-describing remote framing for forward
	// compatibility.
	blobVersion = 1

	keyLen   = 32
	nonceLen = 12

	// storageKeyInfo domain-separates the AEAD storage key from every
	// other value derived from the master seed.
	storageKeyInfo = "veilpay/storage-key/v1"
)

// StorageKeyFromSeed derives the 32-byte AEAD key for a wallet's state
// records from its master seed. The derivation is deterministic, so the
// same signing key always reaches the same storage key on any device.
func StorageKeyFromSeed(masterSeed []byte) ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterSeed, nil, []byte(storageKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive storage key: %w", err)
	}
	return key, nil
}

// Cipher seals and opens state records with AES-256-GCM. A fresh random
// nonce is generated per write and carried next to the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("cipher key must be %d bytes, got %d", keyLen, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// SealDetached encrypts plaintext and returns the IV and ciphertext
// separately, as stored in local records.
func (c *Cipher) SealDetached(plaintext []byte) (iv, ciphertext []byte, err error) {
	iv = make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return iv, c.aead.Seal(nil, iv, plaintext, nil), nil
}

// OpenDetached decrypts a local record's IV + ciphertext pair.
func (c *Cipher) OpenDetached(iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != nonceLen {
		return nil, &DecryptError{Kind: Corrupted, Err: fmt.Errorf("bad iv length %d", len(iv))}
	}
	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &DecryptError{Kind: WrongKey, Err: err}
	}
	return plaintext, nil
}

// Seal encrypts plaintext into the self-describing remote framing:
// version byte, IV, ciphertext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	iv, ciphertext, err := c.SealDetached(plaintext)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, 1+len(iv)+len(ciphertext))
	blob = append(blob, blobVersion)
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Open decrypts a self-describing blob. Malformed framing classifies as
// corrupted; a failed AEAD tag classifies as wrong_key.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < 1+nonceLen+c.aead.Overhead() {
		return nil, &DecryptError{Kind: Corrupted, Err: fmt.Errorf("blob too short: %d bytes", len(blob))}
	}
	if blob[0] != blobVersion {
		return nil, &DecryptError{Kind: Corrupted, Err: fmt.Errorf("unsupported blob version %d", blob[0])}
	}
	return c.OpenDetached(blob[1:1+nonceLen], blob[1+nonceLen:])
}
