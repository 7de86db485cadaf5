package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService(t *testing.T, secret string) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	users := memstorage.NewUserRepository("admin", string(hash))
	return NewAuthService(users, &config.JWTConfig{Secret: secret, TTL: time.Hour, Issuer: "commentgate-api"}, zap.NewNop())
}

func TestLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, "test-secret")

	token, err := svc.Login(ctx, "Admin", "s3cret")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "commentgate-api", claims.Issuer)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, "test-secret")

	_, err := svc.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ierr.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ierr.ErrInvalidCredentials)
}

func TestLogin_DisabledWithoutSecret(t *testing.T) {
	_, err := newAuthService(t, "").Login(context.Background(), "admin", "s3cret")
	assert.ErrorIs(t, err, ierr.ErrForbidden)
}

func TestValidateToken_Rejects(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, "test-secret")

	token, err := svc.Login(ctx, "admin", "s3cret")
	require.NoError(t, err)

	other := newAuthService(t, "other-secret")
	_, err = other.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)

	svc.nowFn = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{Role: "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newAuthService(t, "test-secret").ValidateToken(ctx, none)
	assert.ErrorIs(t, err, ierr.ErrInvalidToken)

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             "viewer",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "commentgate-api", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = newAuthService(t, "test-secret").ValidateToken(ctx, viewer)
	assert.ErrorIs(t, err, ierr.ErrForbidden)
}
