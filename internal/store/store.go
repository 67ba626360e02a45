package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"veilpay/internal/model"
	"veilpay/internal/secret"
)

// Store persists one encrypted nonce-state record per owner hash, one file
// per key under a single directory. The store itself holds no key
// material: every wallet brings its own Cipher, so the store cannot read
// what it holds for anyone else.
type Store struct {
	dir   string
	locks *keyedMutex
}

// New creates the backing directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{dir: dir, locks: newKeyedMutex()}, nil
}

// Get reads and decrypts the record for key. Returns ErrNotFound when the
// wallet has no record yet; decryption failures carry their classification.
func (s *Store) Get(cipher *Cipher, key string) (*model.PersistedNonceState, error) {
	s.locks.lock(key)
	defer s.locks.unlock(key)

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec model.EncryptedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &DecryptError{Kind: Corrupted, Err: fmt.Errorf("malformed record file: %w", err)}
	}

	return decodeState(cipher, rec.IV, rec.Ciphertext)
}

// Put encrypts and writes the record for key. The nonce index must move
// strictly forward relative to any existing, readable record.
func (s *Store) Put(cipher *Cipher, key string, state model.PersistedNonceState) error {
	s.locks.lock(key)
	defer s.locks.unlock(key)

	if data, err := os.ReadFile(s.path(key)); err == nil {
		var rec model.EncryptedRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			if prev, err := decodeState(cipher, rec.IV, rec.Ciphertext); err == nil {
				if state.NonceIndex <= prev.NonceIndex {
					return fmt.Errorf("index %d after %d: %w", state.NonceIndex, prev.NonceIndex, ErrIndexRollback)
				}
			}
		}
	}

	plaintext, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	defer secret.Wipe(plaintext)

	iv, ciphertext, err := cipher.SealDetached(plaintext)
	if err != nil {
		return err
	}

	rec := model.EncryptedRecord{
		ID:         uuid.NewString(),
		IV:         iv,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(s.path(key), data, 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".rec")
}

// decodeState opens and unmarshals one encrypted payload, classifying
// failures per the taxonomy.
func decodeState(cipher *Cipher, iv, ciphertext []byte) (*model.PersistedNonceState, error) {
	plaintext, err := cipher.OpenDetached(iv, ciphertext)
	if err != nil {
		var de *DecryptError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecryptError{Kind: Unknown, Err: err}
	}
	defer secret.Wipe(plaintext)

	var state model.PersistedNonceState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, &DecryptError{Kind: Corrupted, Err: fmt.Errorf("malformed state payload: %w", err)}
	}
	return &state, nil
}
