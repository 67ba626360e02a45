package model

// ObserveRequest represents request for POST /settlement/observe
type ObserveRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"` // decimal SOL
}

// ApproveRequest represents request for POST /settlement/approve
type ApproveRequest struct {
	Amount string `json:"amount" binding:"required"` // decimal SOL
}

// SettleResponse represents response for the settlement endpoints
type SettleResponse struct {
	Status         string `json:"status"`
	CurrentAddress string `json:"currentAddress"`
	NonceIndex     uint32 `json:"nonceIndex"`
}
