package types

type TokenRequest struct {
	ClassID      string `json:"class_id"`
	ValidMinutes int64  `json:"valid_minutes"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	ClassID      string `json:"class_id"`
	IssuedAtMs   int64  `json:"issued_at_ms"`
	ValidMinutes int64  `json:"valid_minutes"`
	ExpiresAt    string `json:"expires_at"`
}
