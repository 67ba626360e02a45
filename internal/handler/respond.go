package handler

import (
	"encoding/json"
	"net/http"

	"veilpay/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error, code string) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: code})
}
