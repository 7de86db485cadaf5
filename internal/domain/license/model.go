package license

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	StatusPending  LicenseStatus = "pending"
	StatusActive   LicenseStatus = "active"
	StatusInactive LicenseStatus = "inactive"
	StatusBanned   LicenseStatus = "banned"
)

func (s LicenseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusBanned:
		return true
	}
	return false
}

// License binds a key to at most one owner and at most one device. OwnerID and
// BoundDevice only ever move from unset to set on the request path.
type License struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	LicenseKey  string         `db:"license_key" json:"license_key"`
	OwnerID     sql.NullString `db:"owner_id" json:"owner_id,omitempty"`
	Status      LicenseStatus  `db:"status" json:"status"`
	Tier        string         `db:"tier" json:"tier"`
	BoundDevice sql.NullString `db:"bound_device" json:"bound_device,omitempty"`
	Note        string         `db:"note" json:"note,omitempty"`
	ExpiresAt   sql.NullTime   `db:"expires_at" json:"expires_at,omitempty"`
	ActivatedAt sql.NullTime   `db:"activated_at" json:"activated_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus is the status the gate acts on: a passed expiry turns an
// otherwise valid license inactive, while banned always stays banned.
func (l *License) EffectiveStatus(now time.Time) LicenseStatus {
	if l.Status == StatusBanned {
		return StatusBanned
	}
	if l.ExpiresAt.Valid && !now.Before(l.ExpiresAt.Time) {
		return StatusInactive
	}
	return l.Status
}

func (l *License) IsActivated() bool {
	return l.OwnerID.Valid && l.OwnerID.String != ""
}

func (l *License) HasBoundDevice() bool {
	return l.BoundDevice.Valid && l.BoundDevice.String != ""
}
