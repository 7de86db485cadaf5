package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{ierr.ErrLicenseNotFound, http.StatusNotFound},
	{ierr.ErrNoLicenseForUser, http.StatusNotFound},
	{ierr.ErrLicenseBanned, http.StatusForbidden},
	{ierr.ErrLicenseInactive, http.StatusForbidden},
	{ierr.ErrDeviceMismatch, http.StatusForbidden},
	{ierr.ErrBlocked, http.StatusForbidden},
	{ierr.ErrQuotaExceeded, http.StatusTooManyRequests},
	{ierr.ErrRateLimited, http.StatusTooManyRequests},
	{ierr.ErrAlreadyActivated, http.StatusConflict},
	{ierr.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{ierr.ErrProviderError, http.StatusBadGateway},
	{ierr.ErrValidation, http.StatusBadRequest},
	{ierr.ErrUnauthorized, http.StatusUnauthorized},
	{ierr.ErrInvalidCredentials, http.StatusUnauthorized},
	{ierr.ErrInvalidToken, http.StatusUnauthorized},
	{ierr.ErrInvalidCronSecret, http.StatusUnauthorized},
	{ierr.ErrAPIKeyNotFound, http.StatusForbidden},
	{ierr.ErrForbidden, http.StatusForbidden},
	{ierr.ErrNotFound, http.StatusNotFound},
	{ierr.ErrUserNotFound, http.StatusNotFound},
	{ierr.ErrConflict, http.StatusConflict},
}

// StatusFor maps an error to its HTTP status, 500 for anything unknown.
func StatusFor(err error) int {
	for _, s := range statusByError {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		errResponse := dto.APIErrorResponse{Code: ierr.Code(err)}
		status := StatusFor(err)

		var ve validator.ValidationErrors
		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			errResponse.Code = "VALIDATION_ERROR"
			errResponse.Message = "Input validation failed."
			errResponse.Details = buildValidationErrors(ve)
		case status == http.StatusUnauthorized:
			errResponse.Message = "Authentication required or failed."
		case errors.Is(err, ierr.ErrStoreUnavailable):
			errResponse.Message = "Service temporarily unavailable, please retry."
		case errors.Is(err, ierr.ErrProviderError):
			errResponse.Message = "Generation failed, please retry."
		case status == http.StatusInternalServerError:
			errResponse.Message = "An unexpected error occurred."
		default:
			errResponse.Message = err.Error()
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.String("code", errResponse.Code),
			zap.Error(err),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", fields...)
		case ierr.IsDenial(err):
			log.Info("Request denied", fields...)
		default:
			log.Warn("Request rejected", fields...)
		}

		c.AbortWithStatusJSON(status, errResponse)
	}
}

func buildValidationErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = dto.FieldError{
			Field:   fe.Field(),
			Message: getValidationErrorMsg(fe),
		}
	}
	return details
}

func getValidationErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s long", fe.Field(), fe.Param())
	case "alphanum":
		return fmt.Sprintf("Field '%s' must contain only letters and digits", fe.Field())
	case "gte":
		return fmt.Sprintf("Field '%s' must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("Field '%s' must be less than or equal to %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("Field '%s' must be greater than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed validation on the '%s' tag", fe.Field(), fe.Tag())
	}
}
