package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
)

type CreateAPIKeyRequest struct {
	Description string `json:"description" binding:"required,max=256"`
	Scope       string `json:"scope" binding:"omitempty,oneof=provision"`
}

// CreateAPIKeyResponse is the only place the full key is ever returned.
type CreateAPIKeyResponse struct {
	ID          uuid.UUID `json:"id"`
	FullKey     string    `json:"full_key"`
	Prefix      string    `json:"prefix"`
	Description string    `json:"description"`
	Scope       string    `json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
}

type APIKeyResponse struct {
	ID          uuid.UUID  `json:"id"`
	Prefix      string     `json:"prefix"`
	Description string     `json:"description"`
	Scope       string     `json:"scope"`
	IsEnabled   bool       `json:"is_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

func NewAPIKeyResponse(k *apikey.APIKey) *APIKeyResponse {
	return &APIKeyResponse{
		ID:          k.ID,
		Prefix:      k.Prefix,
		Description: k.Description,
		Scope:       k.Scope,
		IsEnabled:   k.IsEnabled,
		CreatedAt:   k.CreatedAt,
		LastUsedAt:  k.LastUsedAt,
	}
}
