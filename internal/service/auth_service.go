package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/user"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminClaims are carried by admin access tokens.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users     user.Repository
	cfg       *config.JWTConfig
	dummyHash []byte
	nowFn     func() time.Time
	logger    *zap.Logger
}

func NewAuthService(users user.Repository, cfg *config.JWTConfig, logger *zap.Logger) *AuthService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("commentgate"), bcrypt.DefaultCost)
	return &AuthService{
		users:     users,
		cfg:       cfg,
		dummyHash: dummy,
		nowFn:     time.Now,
		logger:    logger.Named("AuthService"),
	}
}

// TokenTTL is how long issued tokens stay valid.
func (s *AuthService) TokenTTL() time.Duration {
	if s.cfg.TTL <= 0 {
		return 12 * time.Hour
	}
	return s.cfg.TTL
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if s.cfg.Secret == "" {
		s.logger.Warn("Login attempted but jwt.secret is not configured")
		return "", fmt.Errorf("%w: admin login disabled", ierr.ErrForbidden)
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ierr.ErrUserNotFound) {
			// Unknown usernames cost as much as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return "", ierr.ErrInvalidCredentials
		}
		return "", fmt.Errorf("user lookup failed: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ierr.ErrInvalidCredentials
	}

	now := s.nowFn()
	claims := AdminClaims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL())),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("%w: signing token: %v", ierr.ErrInternalServer, err)
	}
	s.logger.Info("Admin logged in", zap.String("username", u.Username))
	return signed, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, rawToken string) (*AdminClaims, error) {
	if s.cfg.Secret == "" {
		return nil, ierr.ErrInvalidToken
	}

	claims := &AdminClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.nowFn),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		s.logger.Debug("Token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ierr.ErrInvalidToken
	}
	if claims.Role != "admin" {
		return nil, fmt.Errorf("%w: admin role required", ierr.ErrForbidden)
	}
	return claims, nil
}
