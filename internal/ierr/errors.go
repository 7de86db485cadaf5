package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrUpdateFailed   = errors.New("resource update failed")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenParsingFailed = errors.New("failed to parse token")
	ErrTokenInvalidClaims = errors.New("token contains invalid claims type")
	ErrAPIKeyNotFound     = errors.New("api key not found or disabled")
	ErrInvalidCronSecret  = errors.New("invalid scheduler secret")
	ErrRateLimited        = errors.New("too many requests")
)

// Access decision reasons. These are returned to callers as denial reasons and
// must never be swallowed into a grant.
var (
	ErrLicenseNotFound  = errors.New("license not found")
	ErrNoLicenseForUser = errors.New("no license for user")
	ErrLicenseBanned    = errors.New("license is banned")
	ErrLicenseInactive  = errors.New("license is inactive or expired")
	ErrDeviceMismatch   = errors.New("device does not match bound device")
	ErrQuotaExceeded    = errors.New("daily quota exceeded")
	ErrAlreadyActivated = errors.New("license already activated")
	ErrBlocked          = errors.New("subject is blocked")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrProviderError    = errors.New("generation provider error")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrLicenseNotFound, "LICENSE_NOT_FOUND"},
	{ErrNoLicenseForUser, "NO_LICENSE_FOR_USER"},
	{ErrLicenseBanned, "LICENSE_BANNED"},
	{ErrLicenseInactive, "LICENSE_INACTIVE"},
	{ErrDeviceMismatch, "DEVICE_MISMATCH"},
	{ErrQuotaExceeded, "QUOTA_EXCEEDED"},
	{ErrAlreadyActivated, "ALREADY_ACTIVATED"},
	{ErrBlocked, "BLOCKED"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
	{ErrProviderError, "PROVIDER_ERROR"},
	{ErrRateLimited, "RATE_LIMITED"},
	{ErrValidation, "VALIDATION_ERROR"},
	{ErrUnauthorized, "UNAUTHENTICATED"},
	{ErrInvalidCredentials, "UNAUTHENTICATED"},
	{ErrInvalidToken, "UNAUTHENTICATED"},
	{ErrInvalidCronSecret, "UNAUTHENTICATED"},
	{ErrAPIKeyNotFound, "FORBIDDEN"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrUserNotFound, "NOT_FOUND"},
	{ErrConflict, "CONFLICT"},
}

// Code returns the stable wire code for err, or INTERNAL_ERROR when err is not
// one of the known sentinels.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL_ERROR"
}

// IsDenial reports whether err is an access decision reason rather than an
// infrastructure failure.
func IsDenial(err error) bool {
	switch {
	case errors.Is(err, ErrLicenseNotFound),
		errors.Is(err, ErrNoLicenseForUser),
		errors.Is(err, ErrLicenseBanned),
		errors.Is(err, ErrLicenseInactive),
		errors.Is(err, ErrDeviceMismatch),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrAlreadyActivated),
		errors.Is(err, ErrBlocked):
		return true
	}
	return false
}
