package store

import (
	"errors"
	"fmt"
)

// DecryptKind classifies why a record failed to decrypt. The distinction
// matters to discovery: wrong_key is the normal "not mine" signal during
// trial decryption, while corrupted means a record that is ours but
// damaged and must be surfaced.
type DecryptKind int

const (
	// WrongKey means AEAD tag verification failed: the ciphertext was
	// produced under a different key.
	WrongKey DecryptKind = iota

	// Corrupted means the framing or the decrypted payload is malformed.
	Corrupted

	// Unknown covers anything else.
	Unknown
)

func (k DecryptKind) String() string {
	switch k {
	case WrongKey:
		return "wrong_key"
	case Corrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// DecryptError carries the classification alongside the underlying cause.
type DecryptError struct {
	Kind DecryptKind
	Err  error
}

func (e *DecryptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decryption failed: %s", e.Kind)
	}
	return fmt.Sprintf("decryption failed (%s): %v", e.Kind, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// IsWrongKey reports whether err is a wrong_key decryption failure.
func IsWrongKey(err error) bool {
	var de *DecryptError
	return errors.As(err, &de) && de.Kind == WrongKey
}

// IsCorrupted reports whether err is a corrupted-record failure.
func IsCorrupted(err error) bool {
	var de *DecryptError
	return errors.As(err, &de) && de.Kind == Corrupted
}

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("no record for key")

// ErrIndexRollback is returned by Put when the new state does not move the
// nonce index strictly forward. State only ever advances; rollback happens
// exclusively through explicit external recovery.
var ErrIndexRollback = errors.New("nonce index must be strictly increasing")
