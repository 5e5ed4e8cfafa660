package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

const testKey = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentCode struct {
	purpose Purpose
	email   string
	name    string
	code    string
}

// recordingSender keeps every code it is asked to deliver
type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *recordingSender) SendVerificationCode(ctx context.Context, toEmail, name, code string) error {
	return s.record(PurposeVerifyEmail, toEmail, name, code)
}

func (s *recordingSender) SendPasswordResetCode(ctx context.Context, toEmail, name, code string) error {
	return s.record(PurposePasswordReset, toEmail, name, code)
}

func (s *recordingSender) record(purpose Purpose, email, name, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentCode{purpose: purpose, email: email, name: name, code: code})
	return s.err
}

func (s *recordingSender) last(t *testing.T, purpose Purpose) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].purpose == purpose {
			return s.sent[i].code
		}
	}
	t.Fatalf("no %s code sent", purpose)
	return ""
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testEnv struct {
	service *Service
	store   *account.MemoryStore
	sender  *recordingSender
	clock   *fakeClock
	tokens  *PasetoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := NewPasetoService([]byte(testKey))
	require.NoError(t, err)

	clock := newFakeClock()
	tokens.now = clock.Now

	store := account.NewMemoryStore()
	sender := &recordingSender{}

	svc := NewService(
		store,
		NewBcryptHasher(4),
		tokens,
		sender,
		metrics.New(prometheus.NewRegistry()),
		logging.NewNopLogger(),
		Settings{},
	)
	svc.now = clock.Now

	return &testEnv{service: svc, store: store, sender: sender, clock: clock, tokens: tokens}
}

func (e *testEnv) signup(t *testing.T, email string) *account.Account {
	t.Helper()

	created, err := e.service.Signup(context.Background(), SignupInput{
		Email:    email,
		Password: "secret1",
		Name:     account.Name{First: "Ann", Last: "Lee"},
	})
	require.NoError(t, err)
	return created
}

func (e *testEnv) find(t *testing.T, email string) *account.Account {
	t.Helper()

	a, err := e.store.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return a
}
