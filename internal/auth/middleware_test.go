package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/httputil"
)

type stubAuthenticator struct {
	err error
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*account.Account, error) {
	return nil, s.err
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.com")
	result, err := env.service.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)

	var seen *account.Account
	protected := NewMiddleware(env.service).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetAccountFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(setup func(r *http.Request)) *httptest.ResponseRecorder {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
		setup(req)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec
	}

	t.Run("bearer header", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+result.Session.Token) })
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "a@x.com", seen.Email)
	})

	t.Run("cookie", func(t *testing.T) {
		rec := serve(func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: result.Session.Token})
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotNil(t, seen)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Token abc") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httputil.CodeInvalidAuthHeader, decodeError(t, rec).Code)
		assert.Nil(t, seen)
	})

	t.Run("missing", func(t *testing.T) {
		rec := serve(func(r *http.Request) {})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httputil.CodeMissingAuth, decodeError(t, rec).Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httputil.CodeInvalidToken, decodeError(t, rec).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		env.clock.Advance(DefaultSessionDuration + time.Minute)
		defer env.clock.Advance(-(DefaultSessionDuration + time.Minute))

		rec := serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+result.Session.Token) })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, httputil.CodeTokenExpired, decodeError(t, rec).Code)
	})
}

func TestRequireAuth_StoreFailureIsInternal(t *testing.T) {
	protected := NewMiddleware(stubAuthenticator{err: errors.New("db down")}).RequireAuth(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestCookieSink(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewCookieSink(false)

	sink.SetSession(rec, &Session{Token: "abc", MaxAge: time.Hour, ExpiresAt: time.Now().Add(time.Hour)})
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.False(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetSessionTokenFromCookie(req)
	assert.ErrorIs(t, err, ErrNoSessionCookie)
}
