package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"veilpay/internal/common"
	"veilpay/internal/model"
	"veilpay/internal/session"
	"veilpay/internal/sweep"
)

// SettleHandler serves the settlement endpoints. Observe and Approve run
// the settlement synchronously: the response reports the final state, and
// an interrupted transfer surfaces as a pending-recovery status rather
// than an opaque timeout.
type SettleHandler struct {
	registry *session.Registry
}

// NewSettleHandler creates a handler over the session registry.
func NewSettleHandler(registry *session.Registry) *SettleHandler {
	return &SettleHandler{registry: registry}
}

func (h *SettleHandler) resolve(r *http.Request) (*session.Session, error) {
	return h.registry.Resolve(r.URL.Query().Get("walletId"))
}

// Observe handles POST /settlement/observe
// @Summary      Report a balance observation
// @Description  Reports a balance seen on the current burner address. In auto mode the settlement runs to completion; in manual mode it parks awaiting approval
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Param        walletId  query  string                false  "Wallet id, optional with a single active session"
// @Param        request   body   model.ObserveRequest  true   "Observed address and amount in SOL"
// @Success      200  {object}  model.SettleResponse
// @Failure      400  {object}  model.ErrorResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /settlement/observe [post]
func (h *SettleHandler) Observe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.ObserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	lamports, err := common.SOLToLamports(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid_amount")
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	err = sess.Observe(r.Context(), req.Address, lamports)
	h.respond(w, sess, err)
}

// Approve handles POST /settlement/approve
// @Summary      Approve a pending settlement
// @Description  Resumes a manual-mode settlement. The amount must match the pending observation
// @Tags         settlement
// @Accept       json
// @Produce      json
// @Param        walletId  query  string                false  "Wallet id, optional with a single active session"
// @Param        request   body   model.ApproveRequest  true   "Approved amount in SOL"
// @Success      200  {object}  model.SettleResponse
// @Failure      400  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /settlement/approve [post]
func (h *SettleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	lamports, err := common.SOLToLamports(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid_amount")
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	err = sess.Approve(r.Context(), lamports)
	if errors.Is(err, sweep.ErrNoPendingApproval) || errors.Is(err, sweep.ErrApprovalMismatch) ||
		errors.Is(err, sweep.ErrSettlementInFlight) {
		writeError(w, http.StatusConflict, err, "approval")
		return
	}
	h.respond(w, sess, err)
}

// Recover handles POST /settlement/recover
// @Summary      Recover an interrupted settlement
// @Description  Resumes a settlement from its pending-recovery checkpoint
// @Tags         settlement
// @Produce      json
// @Param        walletId  query  string  false  "Wallet id, optional with a single active session"
// @Success      200  {object}  model.SettleResponse
// @Failure      404  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /settlement/recover [post]
func (h *SettleHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.resolve(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "no_session")
		return
	}

	err = sess.Recover(r.Context())
	switch {
	case errors.Is(err, sweep.ErrNoPendingSweep):
		writeError(w, http.StatusNotFound, err, "no_pending_sweep")
		return
	case errors.Is(err, sweep.ErrRecoveryImpossible):
		writeError(w, http.StatusConflict, err, "recovery_impossible")
		return
	case errors.Is(err, sweep.ErrSettlementInFlight):
		writeError(w, http.StatusConflict, err, "in_flight")
		return
	}
	h.respond(w, sess, err)
}

// respond reports the settlement outcome. Settlement failures are not
// transport failures: funds are accounted for either way, so the state
// and address still go back with the error.
func (h *SettleHandler) respond(w http.ResponseWriter, sess *session.Session, opErr error) {
	state, _, _, err := sess.Settlement()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}
	address, index, err := sess.CurrentAddress()
	if err != nil {
		writeError(w, http.StatusConflict, err, "not_active")
		return
	}

	resp := model.SettleResponse{
		Status:         SettlementStatus(state),
		CurrentAddress: address,
		NonceIndex:     index,
	}

	if opErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			model.SettleResponse
			Error string `json:"error"`
		}{resp, opErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
