package dto

// APIErrorResponse is the body of every non-2xx response. Code is stable and
// machine readable; Message is for humans.
type APIErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
