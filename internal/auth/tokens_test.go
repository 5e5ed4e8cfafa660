package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/chatty-auth/internal/config"
)

func newTestTokenServices(t *testing.T, clock *fakeClock) map[string]TokenService {
	t.Helper()

	pasetoSvc, err := NewPasetoService([]byte(testKey))
	require.NoError(t, err)
	pasetoSvc.now = clock.Now

	jwtSvc, err := NewJWTService([]byte(testKey))
	require.NoError(t, err)
	jwtSvc.now = clock.Now

	return map[string]TokenService{"paseto": pasetoSvc, "hs256": jwtSvc}
}

func TestTokenService_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	id := uuid.New()

	for name, svc := range newTestTokenServices(t, clock) {
		t.Run(name, func(t *testing.T) {
			token, err := svc.CreateToken(id, "a@x.com", time.Hour)
			require.NoError(t, err)

			claims, err := svc.VerifyToken(token)
			require.NoError(t, err)
			assert.Equal(t, id, claims.AccountID)
			assert.Equal(t, "a@x.com", claims.Email)
			assert.WithinDuration(t, clock.Now().Add(time.Hour), claims.ExpiresAt, time.Second)
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	clock := newFakeClock()

	for name, svc := range newTestTokenServices(t, clock) {
		t.Run(name, func(t *testing.T) {
			token, err := svc.CreateToken(uuid.New(), "a@x.com", time.Hour)
			require.NoError(t, err)

			clock.Advance(time.Hour + time.Second)
			defer clock.Advance(-(time.Hour + time.Second))

			_, err = svc.VerifyToken(token)
			assert.ErrorIs(t, err, ErrExpiredToken)
		})
	}
}

func TestTokenService_Tampered(t *testing.T) {
	clock := newFakeClock()

	for name, svc := range newTestTokenServices(t, clock) {
		t.Run(name, func(t *testing.T) {
			token, err := svc.CreateToken(uuid.New(), "a@x.com", time.Hour)
			require.NoError(t, err)

			_, err = svc.VerifyToken(tamper(token))
			assert.ErrorIs(t, err, ErrInvalidToken)

			_, err = svc.VerifyToken("not-a-token")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenService_RequiresBothClaims(t *testing.T) {
	clock := newFakeClock()

	for name, svc := range newTestTokenServices(t, clock) {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateToken(uuid.New(), "", time.Hour)
			assert.Error(t, err)

			_, err = svc.CreateToken(uuid.Nil, "a@x.com", time.Hour)
			assert.Error(t, err)
		})
	}
}

func TestTokenService_KeysDoNotCross(t *testing.T) {
	a, err := NewPasetoService([]byte(testKey))
	require.NoError(t, err)
	b, err := NewPasetoService([]byte(strings.Repeat("z", 32)))
	require.NoError(t, err)

	token, err := a.CreateToken(uuid.New(), "a@x.com", time.Hour)
	require.NoError(t, err)

	_, err = b.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenService(t *testing.T) {
	svc, err := NewTokenService(config.AuthConfig{TokenAlgorithm: config.AlgorithmPaseto, PasetoKey: []byte(testKey)})
	require.NoError(t, err)
	assert.IsType(t, &PasetoService{}, svc)

	svc, err = NewTokenService(config.AuthConfig{TokenAlgorithm: config.AlgorithmHS256, JWTSecret: []byte(testKey)})
	require.NoError(t, err)
	assert.IsType(t, &JWTService{}, svc)

	_, err = NewTokenService(config.AuthConfig{TokenAlgorithm: config.AlgorithmPaseto, PasetoKey: []byte("short")})
	assert.Error(t, err)

	_, err = NewTokenService(config.AuthConfig{TokenAlgorithm: config.AlgorithmHS256, JWTSecret: []byte("short")})
	assert.Error(t, err)

	_, err = NewTokenService(config.AuthConfig{TokenAlgorithm: "rs256"})
	assert.Error(t, err)
}

func TestSessionIssuer_Issue(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenServices(t, clock)["paseto"]
	issuer := NewSessionIssuer(svc, 0)
	issuer.now = clock.Now

	env := newTestEnv(t)
	a := env.signup(t, "a@x.com")

	session, err := issuer.Issue(a)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionDuration, session.MaxAge)
	assert.Equal(t, clock.Now().Add(DefaultSessionDuration), session.ExpiresAt)

	claims, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.AccountID)
	assert.Equal(t, a.Email, claims.Email)
}

// tamper flips one base64url character well inside the last token segment
func tamper(token string) string {
	i := len(token) - 10
	replacement := byte('A')
	if token[i] == 'A' {
		replacement = 'B'
	}
	return token[:i] + string(replacement) + token[i+1:]
}
