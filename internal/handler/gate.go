package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/service"
	"go.uber.org/zap"
)

// GateHandler serves the public, extension-facing endpoints.
type GateHandler struct {
	generation *service.GenerationService
	activation *service.ActivationService
	gate       *service.AccessGate
	logger     *zap.Logger
}

func NewGateHandler(generation *service.GenerationService, activation *service.ActivationService, gate *service.AccessGate, logger *zap.Logger) *GateHandler {
	return &GateHandler{
		generation: generation,
		activation: activation,
		gate:       gate,
		logger:     logger.Named("GateHandler"),
	}
}

func (h *GateHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Failed to bind generate request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.generation.Generate(c.Request.Context(), service.GenerateInput{
		Credential: service.Credential{
			UserID:      req.UserID,
			LicenseKey:  req.LicenseKey,
			Fingerprint: c.ClientIP(),
		},
		Prompt: req.Prompt,
		Kind:   quota.UsageKind(req.Kind),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.GenerateResponse{Result: res.Text, Remaining: res.Remaining})
}

func (h *GateHandler) Activate(c *gin.Context) {
	var req dto.ActivateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Failed to bind activate request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	lic, err := h.activation.Activate(c.Request.Context(), req.LicenseKey, req.UserID, c.ClientIP())
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.ActivateLicenseResponse{
		LicenseKey: lic.LicenseKey,
		UserID:     lic.OwnerID.String,
		Status:     string(lic.Status),
	}
	if lic.ExpiresAt.Valid {
		resp.ExpiresAt = lic.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// Authorize runs the gate without generating anything. Denials are answered
// with the same status codes as /generate so the extension can share handling.
func (h *GateHandler) Authorize(c *gin.Context) {
	var req dto.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	dec, err := h.gate.Authorize(c.Request.Context(), service.Credential{
		UserID:      req.UserID,
		LicenseKey:  req.LicenseKey,
		Fingerprint: c.ClientIP(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.AuthorizeResponse{
		Authorized: dec.Authorized,
		UserID:     dec.UserID,
		Remaining:  dec.Remaining,
		DailyLimit: dec.DailyLimit,
	})
}

// bindError keeps validator errors intact so the error middleware can list
// field details, and marks everything else (malformed JSON) as validation.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrValidation, err)
}
