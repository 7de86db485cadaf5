package apikey

import (
	"time"

	"github.com/google/uuid"
)

// Scopes an API key can carry. Provisioning callers (the payment webhook
// relay) get ScopeProvision.
const (
	ScopeProvision = "provision"
)

type APIKey struct {
	ID          uuid.UUID  `db:"id"`
	KeyHash     string     `db:"key_hash"`
	Prefix      string     `db:"prefix"`
	Description string     `db:"description"`
	Scope       string     `db:"scope"`
	IsEnabled   bool       `db:"is_enabled"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
}

const (
	APIKeyPrefixLength = 8
	APIKeySecretLength = 32
	APIKeyFormat       = "cg_%s_%s"
	APIKeyTag          = "cg"
)
