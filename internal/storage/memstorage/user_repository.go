package memstorage

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/user"
	"github.com/makkenzo/commentgate-api/internal/ierr"
)

// UserRepository holds the admin accounts. There is a single admin seeded from
// configuration; an empty password hash leaves the admin API closed.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

func NewUserRepository(username, passwordHash string) *UserRepository {
	repo := &UserRepository{
		users: make(map[string]*user.User),
	}
	if username != "" && passwordHash != "" {
		repo.users[strings.ToLower(username)] = &user.User{
			ID:           uuid.New(),
			Username:     username,
			PasswordHash: passwordHash,
			Role:         "admin",
		}
	}
	return repo
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, ierr.ErrUserNotFound
	}

	userCopy := *u
	return &userCopy, nil
}
