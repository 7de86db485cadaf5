package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
)

type ProvisionLicenseRequest struct {
	Tier          string                 `json:"tier" binding:"omitempty,max=32,alphanum"`
	Note          string                 `json:"note" binding:"omitempty,max=256"`
	ExpiresAt     *time.Time             `json:"expires_at"`
	InitialStatus *license.LicenseStatus `json:"initial_status,omitempty" binding:"omitempty,oneof=pending active"`
}

type LicenseResponse struct {
	ID              uuid.UUID             `json:"id"`
	LicenseKey      string                `json:"license_key"`
	Status          license.LicenseStatus `json:"status"`
	EffectiveStatus license.LicenseStatus `json:"effective_status"`
	Tier            string                `json:"tier"`
	OwnerID         *string               `json:"owner_id,omitempty"`
	BoundDevice     *string               `json:"bound_device,omitempty"`
	Note            string                `json:"note,omitempty"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	ActivatedAt     *time.Time            `json:"activated_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func NewLicenseResponse(lic *license.License) *LicenseResponse {
	resp := &LicenseResponse{
		ID:              lic.ID,
		LicenseKey:      lic.LicenseKey,
		Status:          lic.Status,
		EffectiveStatus: lic.EffectiveStatus(time.Now()),
		Tier:            lic.Tier,
		Note:            lic.Note,
		CreatedAt:       lic.CreatedAt,
		UpdatedAt:       lic.UpdatedAt,
	}
	if lic.OwnerID.Valid {
		resp.OwnerID = &lic.OwnerID.String
	}
	if lic.BoundDevice.Valid {
		resp.BoundDevice = &lic.BoundDevice.String
	}
	if lic.ExpiresAt.Valid {
		resp.ExpiresAt = &lic.ExpiresAt.Time
	}
	if lic.ActivatedAt.Valid {
		resp.ActivatedAt = &lic.ActivatedAt.Time
	}
	return resp
}

type ListLicensesRequest struct {
	Status    *license.LicenseStatus `form:"status" binding:"omitempty,oneof=pending active inactive banned"`
	OwnerID   *string                `form:"owner_id"`
	Tier      *string                `form:"tier"`
	Limit     int                    `form:"limit,default=20" binding:"omitempty,gte=0,lte=200"`
	Offset    int                    `form:"offset,default=0" binding:"omitempty,gte=0"`
	SortBy    string                 `form:"sort_by,default=created_at" binding:"omitempty,oneof=created_at updated_at expires_at activated_at"`
	SortOrder string                 `form:"sort_order,default=DESC" binding:"omitempty,oneof=ASC DESC"`
}

type PaginatedLicenseResponse struct {
	Licenses   []*LicenseResponse `json:"licenses"`
	TotalCount int64              `json:"totalCount"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

type UpdateLicenseStatusRequest struct {
	Status *license.LicenseStatus `json:"status" binding:"required,oneof=pending active inactive banned"`
}

// RenewLicenseRequest sets a new expiry. A null expires_at removes it.
type RenewLicenseRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}
