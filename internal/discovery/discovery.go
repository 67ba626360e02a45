// Package discovery locates a wallet's own state record among the opaque
// blobs held by the untrusted remote store. The server never learns which
// blob belongs to whom: the only signal it could observe is ciphertext size
// and access timing. Ownership is established purely by trial decryption
// with the session's derived storage key.
package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"veilpay/internal/model"
	"veilpay/internal/secret"
	"veilpay/internal/store"
)

// Result reports the outcome of a discovery pass. When Found is false the
// caller treats the wallet as new and provisions from scratch.
type Result struct {
	Found bool
	ID    string
	State model.PersistedNonceState
}

// Discovery trial-decrypts remote blobs with one wallet's cipher.
type Discovery struct {
	cipher *store.Cipher
	log    zerolog.Logger
}

// New returns a Discovery bound to the session's storage cipher.
func New(cipher *store.Cipher, log zerolog.Logger) *Discovery {
	return &Discovery{cipher: cipher, log: log.With().Str("component", "discovery").Logger()}
}

// FindOwned attempts to decrypt each blob and returns the first that opens
// under our key. Failed AEAD tags and malformed framing are the normal
// "not mine" signals and are skipped silently. A blob that opens but holds
// a malformed payload is ours and damaged; that is a data-integrity fault
// and propagates. At most one blob can open under a given key unless the
// remote party is corrupted, which is operator error and not handled here.
func (d *Discovery) FindOwned(blobs []model.RemoteRecord) (Result, error) {
	for _, rec := range blobs {
		plaintext, err := d.cipher.Open(rec.Blob)
		if err != nil {
			if store.IsWrongKey(err) || store.IsCorrupted(err) {
				continue
			}
			return Result{}, fmt.Errorf("trial decryption of record %s: %w", rec.ID, err)
		}

		var state model.PersistedNonceState
		if err := json.Unmarshal(plaintext, &state); err != nil {
			secret.Wipe(plaintext)
			return Result{}, &store.DecryptError{
				Kind: store.Corrupted,
				Err:  fmt.Errorf("owned record %s has malformed payload: %w", rec.ID, err),
			}
		}
		secret.Wipe(plaintext)

		d.log.Debug().Str("record", rec.ID).Uint32("index", state.NonceIndex).Msg("owned state record found")
		return Result{Found: true, ID: rec.ID, State: state}, nil
	}

	d.log.Debug().Int("records", len(blobs)).Msg("no owned record in set")
	return Result{}, nil
}
