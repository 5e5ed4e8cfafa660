package auth

import (
	"fmt"
	"time"

	"github.com/redmonkez12/chatty-auth/internal/account"
)

// DefaultSessionDuration is the lifetime of a session token and its cookie
const DefaultSessionDuration = 7 * 24 * time.Hour

// Session is a signed token ready to be handed to the transport
type Session struct {
	Token     string
	ExpiresAt time.Time
	MaxAge    time.Duration
}

// SessionIssuer signs session tokens for authenticated accounts
type SessionIssuer struct {
	tokens   TokenService
	duration time.Duration
	now      func() time.Time
}

func NewSessionIssuer(tokens TokenService, duration time.Duration) *SessionIssuer {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionIssuer{tokens: tokens, duration: duration, now: time.Now}
}

// Issue signs {user_id, email} for a with the configured lifetime
func (s *SessionIssuer) Issue(a *account.Account) (*Session, error) {
	token, err := s.tokens.CreateToken(a.ID, a.Email, s.duration)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	return &Session{
		Token:     token,
		ExpiresAt: s.now().Add(s.duration),
		MaxAge:    s.duration,
	}, nil
}

// Parse validates a session token and returns its claims
func (s *SessionIssuer) Parse(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	return s.tokens.VerifyToken(token)
}
