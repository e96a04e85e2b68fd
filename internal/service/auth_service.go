package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/auth"
	"github.com/spec-kit/incidence-service/internal/config"
	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

// AuthService authenticates operators of the HTTP API against the user
// directory carried by the routing configuration.
type AuthService struct {
	routing  *routing.Store
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, store *routing.Store, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		routing:  store,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:   logger,
	}
}

// Login verifies the password of userID and returns a signed access token.
func (s *AuthService) Login(_ context.Context, userID, password string) (domain.User, string, time.Time, error) {
	user, ok := s.routing.Current().User(userID)
	if !ok {
		return domain.User{}, "", time.Time{}, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
	}
	if err := auth.VerifyPassword(user, password); err != nil {
		s.logger.Info("login rejected", zap.String("user_id", userID))
		return domain.User{}, "", time.Time{}, apperrors.NewUnauthorized(err.Error())
	}
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return domain.User{}, "", time.Time{}, apperrors.NewInternalError(fmt.Errorf("sign token: %w", err))
	}
	return user, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
