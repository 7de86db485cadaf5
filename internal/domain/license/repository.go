package license

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/ierr"
)

var ErrNotFound = ierr.ErrLicenseNotFound

type ListParams struct {
	Status    *LicenseStatus
	OwnerID   *string
	Tier      *string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// ActivateParams describes the one-time owner claim.
type ActivateParams struct {
	LicenseKey  string
	OwnerID     string
	Device      string
	ExpiresAt   time.Time
	ActivatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, license *License) (uuid.UUID, error)
	FindByKey(ctx context.Context, key string) (*License, error)
	FindByOwner(ctx context.Context, ownerID string) (*License, error)
	List(ctx context.Context, params ListParams) ([]*License, int64, error)

	// Activate sets owner, status active, device (when unset) and expiry only
	// where owner is unset and status is not banned. It reports whether the
	// row was claimed by this call.
	Activate(ctx context.Context, params ActivateParams) (bool, error)
	// BindDevice sets the device only where none is bound yet and reports
	// whether this call performed the bind.
	BindDevice(ctx context.Context, key, device string) (bool, error)
	ClearDevice(ctx context.Context, key string) error
	UpdateStatus(ctx context.Context, key string, status LicenseStatus) error
	UpdateExpiry(ctx context.Context, key string, expiresAt *time.Time) error
	// ExpireDue marks active licenses whose expiry has passed as inactive.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
