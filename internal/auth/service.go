package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"go.uber.org/zap"
)

type Permission string

const (
	PermOperator Permission = "operator"
	PermAdmin    Permission = "admin"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthService struct {
	keys       []config.APIKeyConfig
	jwtHandler *JWTHandler
	hasher     *Hasher
	logger     *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready", zap.String("env", cfg.JWTSecretEnv))
	}

	return &AuthService{
		keys:       cfg.APIKeys,
		jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		hasher:     NewHasher(),
		logger:     logger,
	}
}

// IssueToken exchanges an API key for a JWT access token.
func (a *AuthService) IssueToken(apiKey, ipAddress string) (string, time.Time, string, error) {
	if !ValidKeyFormat(apiKey) {
		a.logger.Warn("Token request with malformed key", zap.String("ip", ipAddress))
		return "", time.Time{}, "", ErrInvalidCredentials
	}

	for _, k := range a.keys {
		ok, err := a.hasher.Verify(apiKey, k.Hash)
		if err != nil {
			a.logger.Error("Invalid API key hash in config", zap.String("key", k.Name), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		token, expires, err := a.jwtHandler.GenerateAccessToken(k.Name, k.Role)
		if err != nil {
			return "", time.Time{}, "", fmt.Errorf("failed to generate access token: %w", err)
		}

		a.logger.Info("Access token issued",
			zap.String("key", k.Name),
			zap.String("role", k.Role),
			zap.String("ip", ipAddress))
		return token, expires, k.Role, nil
	}

	a.logger.Warn("Token request with unknown key", zap.String("ip", ipAddress))
	return "", time.Time{}, "", ErrInvalidCredentials
}

// ValidateToken validates an access token and returns its permissions.
func (a *AuthService) ValidateToken(token string) ([]Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	return roleToPermissions(claims.Role), nil
}

func roleToPermissions(role string) []Permission {
	switch role {
	case "admin":
		return []Permission{PermOperator, PermAdmin}
	default:
		return []Permission{PermOperator}
	}
}
