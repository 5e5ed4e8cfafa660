package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/chatty-auth/internal/config"
)

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(accountID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// NewTokenService builds the signer selected by configuration.
// Any error here is a startup failure.
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	switch cfg.TokenAlgorithm {
	case config.AlgorithmPaseto:
		svc, err := NewPasetoService(cfg.PasetoKey)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case config.AlgorithmHS256:
		svc, err := NewJWTService(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.TokenAlgorithm)
	}
}
