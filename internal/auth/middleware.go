package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/httputil"
	"github.com/redmonkez12/chatty-auth/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const AccountContextKey ContextKey = "account"

// Authenticator resolves a session token to an account
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*account.Account, error)
}

// Middleware guards routes that need a valid session
type Middleware struct {
	authenticator Authenticator
}

func NewMiddleware(authenticator Authenticator) *Middleware {
	return &Middleware{authenticator: authenticator}
}

// RequireAuth accepts a Bearer header or the session cookie
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		var token string

		// Priority 1: Authorization header
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}
			token = parts[1]
		}

		// Priority 2: Cookie
		if token == "" {
			cookieToken, err := GetSessionTokenFromCookie(r)
			if err != nil {
				httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}
			token = cookieToken
		}

		current, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrExpiredToken):
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
			case KindOf(err) == KindUnauthorized:
				httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			default:
				logger.Error("failed to authenticate session", "error", err)
				httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), AccountContextKey, current)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"account_id": current.ID}))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountFromContext returns the account stored by RequireAuth
func GetAccountFromContext(ctx context.Context) (*account.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*account.Account)
	return a, ok
}
