package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

const (
	minPasswordLength = 6
	minNameLength     = 3
)

// Settings holds the tunable durations of the credential lifecycle
type Settings struct {
	SessionDuration time.Duration
	CodeTTL         time.Duration
	CodeCooldown    time.Duration
	MaxCodeAttempts int
}

func (s Settings) withDefaults() Settings {
	if s.SessionDuration <= 0 {
		s.SessionDuration = DefaultSessionDuration
	}
	if s.CodeTTL <= 0 {
		s.CodeTTL = DefaultCodeTTL
	}
	if s.CodeCooldown <= 0 {
		s.CodeCooldown = DefaultCodeCooldown
	}
	if s.MaxCodeAttempts <= 0 {
		s.MaxCodeAttempts = DefaultMaxCodeAttempts
	}
	return s
}

// SignupInput is the data needed to create an account
type SignupInput struct {
	Email    string
	Password string
	Name     account.Name
}

// AuthResult is an account together with a freshly issued session
type AuthResult struct {
	Account *account.Account
	Session *Session
}

// Service orchestrates signup, verification, login and password reset
type Service struct {
	accounts account.Store
	hasher   PasswordHasher
	issuer   *OTPIssuer
	verifier *CredentialVerifier
	gate     ResetGate
	sessions *SessionIssuer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(
	accounts account.Store,
	hasher PasswordHasher,
	tokens TokenService,
	sender CodeSender,
	m *metrics.Metrics,
	logger *logging.Logger,
	settings Settings,
) *Service {
	settings = settings.withDefaults()

	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		gate:     ResetGate{Window: settings.CodeTTL},
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}

	// components read the clock through the service so tests can move it
	clock := func() time.Time { return s.now() }

	s.issuer = &OTPIssuer{
		accounts:  accounts,
		generator: NewCodeGenerator(),
		cooldown:  Cooldown{Interval: settings.CodeCooldown},
		sender:    sender,
		ttl:       settings.CodeTTL,
		metrics:   m,
		logger:    logger,
		now:       clock,
	}
	s.verifier = &CredentialVerifier{
		accounts:    accounts,
		gate:        s.gate,
		maxAttempts: settings.MaxCodeAttempts,
		metrics:     m,
		now:         clock,
	}
	s.sessions = NewSessionIssuer(tokens, settings.SessionDuration)
	s.sessions.now = clock

	return s
}

// Signup creates an unverified account and issues its verification code
func (s *Service) Signup(ctx context.Context, in SignupInput) (*account.Account, error) {
	logger := s.logger.WithContext(ctx)

	in.Email = account.NormalizeEmail(in.Email)
	in.Name.First = strings.TrimSpace(in.Name.First)
	in.Name.Last = strings.TrimSpace(in.Name.Last)
	if err := validateSignup(in); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	pending := &account.Account{
		Email:        in.Email,
		PasswordHash: passwordHash,
		Name:         in.Name,
		Presence:     account.PresenceOffline,
	}
	// the first code is stored with the account, never after it
	code, err := s.issuer.attach(pending, PurposeVerifyEmail, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification code: %w", err)
	}

	created, err := s.accounts.Create(ctx, pending)
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.issuer.announce(ctx, created, PurposeVerifyEmail, code)
	logger.Info("account created", "account_id", created.ID)

	return created, nil
}

// VerifyEmail consumes the verification code and starts a session
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*AuthResult, error) {
	verified, err := s.verifier.Verify(ctx, account.NormalizeEmail(email), PurposeVerifyEmail, code)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("email verified", "account_id", verified.ID)

	return s.startSession(verified)
}

// ResendVerification rotates the verification code of an unverified account
func (s *Service) ResendVerification(ctx context.Context, email string) (*IssuedCode, error) {
	existing, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s.issuer.Issue(ctx, existing.ID, PurposeVerifyEmail)
}

// Login checks credentials. Verification is not required to log in.
// Unknown email and wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	existing, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			return nil, fmt.Errorf("failed to find account: %w", err)
		}
		// spend the same work as a real comparison
		_, _ = s.hasher.Compare(s.dummyPasswordHash(), password)
		s.metrics.Login(metrics.ResultFailure)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Compare(existing.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.Login(metrics.ResultFailure)
		return nil, ErrInvalidCredentials
	}

	s.metrics.Login(metrics.ResultSuccess)
	return s.startSession(existing)
}

// RequestPasswordReset issues a reset code. Any open reset authorization is revoked.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*IssuedCode, error) {
	existing, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s.issuer.Issue(ctx, existing.ID, PurposePasswordReset)
}

// VerifyResetCode consumes the reset code and opens the reset gate
func (s *Service) VerifyResetCode(ctx context.Context, email, code string) error {
	verified, err := s.verifier.Verify(ctx, account.NormalizeEmail(email), PurposePasswordReset, code)
	if err != nil {
		return err
	}

	s.logger.WithContext(ctx).Info("reset code verified", "account_id", verified.ID)
	return nil
}

// ResetPassword replaces the password through an open gate, closes the gate
// and starts a fresh session.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) (*AuthResult, error) {
	if len(newPassword) < minPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}

	existing, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreError(err)
	}
	// fail fast before paying for the hash; checked again under the update
	if err := s.gate.Require(existing, s.now()); err != nil {
		s.logger.WithContext(ctx).Warn("password reset refused",
			"account_id", existing.ID,
			"phase", s.gate.Phase(existing, s.now()).String(),
		)
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.accounts.Update(ctx, existing.ID, func(a *account.Account) error {
		if err := s.gate.Require(a, now); err != nil {
			return err
		}
		a.PasswordHash = passwordHash
		s.gate.Close(a)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.metrics.PasswordReset()
	s.logger.WithContext(ctx).Info("password reset", "account_id", updated.ID)

	return s.startSession(updated)
}

// Authenticate resolves a session token to the current account
func (s *Service) Authenticate(ctx context.Context, token string) (*account.Account, error) {
	claims, err := s.sessions.Parse(token)
	if err != nil {
		return nil, err
	}

	current, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if current.Email != claims.Email {
		return nil, ErrUnauthorized
	}

	return current, nil
}

// UpdateProfile replaces the avatar reference of an account
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, avatarRef string) (*account.Account, error) {
	avatarRef = strings.TrimSpace(avatarRef)
	if avatarRef == "" {
		return nil, &ValidationError{Field: "avatar", Message: "is required"}
	}

	updated, err := s.accounts.Update(ctx, accountID, func(a *account.Account) error {
		a.AvatarRef = avatarRef
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return updated, nil
}

func (s *Service) startSession(a *account.Account) (*AuthResult, error) {
	session, err := s.sessions.Issue(a)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Account: a, Session: session}, nil
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func validateSignup(in SignupInput) error {
	switch {
	case in.Email == "":
		return &ValidationError{Field: "email", Message: "is required"}
	case len(in.Password) < minPasswordLength:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	case len(in.Name.First) < minNameLength:
		return &ValidationError{Field: "firstName", Message: fmt.Sprintf("must be at least %d characters", minNameLength)}
	case len(in.Name.Last) < minNameLength:
		return &ValidationError{Field: "lastName", Message: fmt.Sprintf("must be at least %d characters", minNameLength)}
	}
	return nil
}
