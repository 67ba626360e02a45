package session

import (
	"context"
	"errors"
	"sync"

	"veilpay/internal/model"
)

// ErrNoSession is returned when an operation needs an active session and
// none exists.
var ErrNoSession = errors.New("no active session for wallet")

// Registry tracks active sessions by wallet id. Destroyed sessions are
// removed, so a wallet can re-initialize after destroying its session.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry sharing one set of collaborators.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// Init creates and initializes a session for the wallet behind the
// signature. A second Init for the same wallet while a session is active
// is rejected; the caller must destroy the old session first.
func (r *Registry) Init(ctx context.Context, signature, walletPublicID []byte) (*model.InitResponse, error) {
	if len(walletPublicID) == 0 {
		return nil, errors.New("wallet public id is required")
	}
	walletID := model.OwnerHash(walletPublicID)

	r.mu.Lock()
	if _, ok := r.sessions[walletID]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	sess := New(r.deps)
	r.sessions[walletID] = sess
	r.mu.Unlock()

	resp, err := sess.Init(ctx, signature, walletPublicID)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, walletID)
		r.mu.Unlock()
		return nil, err
	}
	return resp, nil
}

// Destroy retires the wallet's session and removes it from the registry.
func (r *Registry) Destroy(walletID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[walletID]
	if ok {
		delete(r.sessions, walletID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	return sess.Destroy()
}

// Get returns the wallet's active session.
func (r *Registry) Get(walletID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[walletID]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Resolve returns the session for walletID, or, when walletID is empty and
// exactly one session is active, that session. Single-wallet deployments
// can then omit the wallet id entirely.
func (r *Registry) Resolve(walletID string) (*Session, error) {
	if walletID != "" {
		return r.Get(walletID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 1 {
		for _, sess := range r.sessions {
			return sess, nil
		}
	}
	return nil, ErrNoSession
}

// DestroyAll retires every active session, used at shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Destroy()
	}
}
