package dto

// Public endpoints use camelCase to match the browser extension's payloads.

type GenerateRequest struct {
	UserID     string `json:"userId" binding:"omitempty,max=128"`
	LicenseKey string `json:"licenseKey" binding:"omitempty,max=128"`
	Prompt     string `json:"prompt" binding:"required"`
	Kind       string `json:"kind" binding:"omitempty,oneof=comment summary"`
}

type GenerateResponse struct {
	Result    string `json:"result"`
	Remaining int64  `json:"remaining"`
}

type ActivateLicenseRequest struct {
	LicenseKey string `json:"licenseKey" binding:"required,max=128"`
	UserID     string `json:"userId" binding:"required,max=128"`
}

type ActivateLicenseResponse struct {
	LicenseKey string `json:"licenseKey"`
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

type AuthorizeRequest struct {
	UserID     string `json:"userId" binding:"omitempty,max=128"`
	LicenseKey string `json:"licenseKey" binding:"omitempty,max=128"`
}

// AuthorizeResponse mirrors an access decision. Denials carry the reason code.
type AuthorizeResponse struct {
	Authorized bool   `json:"authorized"`
	UserID     string `json:"userId,omitempty"`
	Remaining  int64  `json:"remaining"`
	DailyLimit int64  `json:"dailyLimit,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ResetQuotasResponse struct {
	CycleDate string `json:"cycleDate"`
	Reset     int64  `json:"reset"`
}
