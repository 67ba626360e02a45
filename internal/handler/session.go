package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/skip2/go-qrcode"

	"veilpay/internal/model"
	"veilpay/internal/session"
	"veilpay/internal/sweep"
)

// SessionHandler serves the session lifecycle and address endpoints.
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler creates a handler over the session registry.
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// resolve picks the session for the optional walletId query parameter.
func (h *SessionHandler) resolve(r *http.Request) (*session.Session, error) {
	return h.registry.Resolve(r.URL.Query().Get("walletId"))
}

// Init handles POST /session/init
// @Summary      Initialize wallet session
// @Description  Derives the wallet's key material from the signature, recovers or provisions its state and activates the session
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      model.InitRequest  true  "Wallet signature and public id"
// @Success      200      {object}  model.InitResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Router       /session/init [post]
func (h *SessionHandler) Init(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	resp, err := h.registry.Init(r.Context(), req.Signature, req.WalletPublicID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, err, "already_active")
			return
		}
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Destroy handles POST /session/destroy
// @Summary      Destroy wallet session
// @Description  Wipes the session's key material. Persisted state survives and the wallet is recoverable from its signature
// @Tags         session
// @Produce      json
// @Param        walletId  query  string  false  "Wallet id, optional with a single active session"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  model.ErrorResponse
// @Router       /session/destroy [post]
func (h *SessionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	if err := h.registry.Destroy(sess.WalletID()); err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

// Status handles GET /session/status
// @Summary      Get session status
// @Description  Reports the session lifecycle state, settlement progress and pending recovery information
// @Tags         session
// @Produce      json
// @Param        walletId  query  string  false  "Wallet id, optional with a single active session"
// @Success      200  {object}  model.StatusResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /session/status [get]
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	state, pendingSweep, approval, err := sess.Settlement()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}

	_, index, err := sess.CurrentAddress()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}

	resp := model.StatusResponse{
		State:        sess.State().String(),
		Settlement:   SettlementStatus(state),
		NonceIndex:   index,
		PendingSweep: pendingSweep != nil,
	}
	if approval != nil {
		resp.PendingAmount = approval.Amount
	}

	writeJSON(w, http.StatusOK, resp)
}

// CurrentAddress handles GET /address/current
// @Summary      Get current receiving address
// @Description  Returns the current spending burner address with a QR code (base64 PNG)
// @Tags         address
// @Produce      json
// @Param        walletId  query  string  false  "Wallet id, optional with a single active session"
// @Success      200  {object}  model.AddressResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /address/current [get]
func (h *SessionHandler) CurrentAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	address, _, err := sess.CurrentAddress()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}

	qr, err := addressQR(address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}

	writeJSON(w, http.StatusOK, model.AddressResponse{Address: address, QR: qr})
}

// StableAddress handles GET /address/stable
// @Summary      Get stable private-balance address
// @Description  Returns the wallet's stable settled-balance address. No QR: this address is not meant to be shared for receiving
// @Tags         address
// @Produce      json
// @Param        walletId  query  string  false  "Wallet id, optional with a single active session"
// @Success      200  {object}  model.AddressResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /address/stable [get]
func (h *SessionHandler) StableAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	address, err := sess.StableAddress()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}

	writeJSON(w, http.StatusOK, model.AddressResponse{Address: address})
}

// addressQR renders the address as a base64-encoded PNG QR code.
func addressQR(address string) (string, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}

// SettlementStatus maps orchestrator states onto the three strings shown
// to users. Anything between detection and rotation reads as in progress.
func SettlementStatus(state sweep.State) string {
	switch state {
	case sweep.StateDetected, sweep.StateDepositing, sweep.StateVerifying, sweep.StateTransferring:
		return "funds detected, shielding in progress"
	case sweep.StatePendingRecovery:
		return "shielding failed — funds safe, retrying"
	case sweep.StateRotated:
		return "shielding complete"
	default:
		return "idle"
	}
}
