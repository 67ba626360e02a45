package model

// InitRequest represents request for POST /session/init
type InitRequest struct {
	Signature      []byte `json:"signature" binding:"required"`
	WalletPublicID []byte `json:"walletId" binding:"required"`
}

// InitResponse represents response for POST /session/init
type InitResponse struct {
	WalletID       string `json:"walletId"`
	StableAddress  string `json:"stableAddress"`
	CurrentAddress string `json:"currentAddress"`
	NonceIndex     uint32 `json:"nonceIndex"`
}

// StatusResponse represents response for GET /session/status
type StatusResponse struct {
	State         string `json:"state"`
	Settlement    string `json:"settlement"`
	NonceIndex    uint32 `json:"nonceIndex"`
	PendingSweep  bool   `json:"pendingSweep"`
	PendingAmount uint64 `json:"pendingAmount,omitempty"`
}

// AddressResponse represents response for GET /address/current and /address/stable
type AddressResponse struct {
	Address string `json:"address"`
	QR      string `json:"qr,omitempty"`
}
