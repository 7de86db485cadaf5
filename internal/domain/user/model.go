package user

import (
	"context"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
}

type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}
