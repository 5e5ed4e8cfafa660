package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

// Code parameters
const (
	DefaultCodeTTL      = 10 * time.Minute
	DefaultCodeCooldown = 60 * time.Second

	codeMin   = 100000
	codeRange = 900000 // codes fall in [100000, 999999]
)

// Purpose identifies which flow a one-time code belongs to
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposePasswordReset Purpose = "password_reset"
)

// hasCooldown reports whether repeated requests for p are spaced by the
// cooldown. Reset requests only record their marker; they are throttled per IP.
func (p Purpose) hasCooldown() bool {
	return p == PurposeVerifyEmail
}

// codeState returns the slot on a that holds codes for p
func (p Purpose) codeState(a *account.Account) *account.CodeState {
	if p == PurposePasswordReset {
		return &a.Reset.CodeState
	}
	return &a.Verification.CodeState
}

// CodeGenerator produces one-time codes
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator draws 6-digit codes from a cryptographic source
type RandomCodeGenerator struct {
	reader io.Reader
}

func NewCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{reader: rand.Reader}
}

// Generate returns a code uniformly distributed over [100000, 999999]
func (g *RandomCodeGenerator) Generate() (string, error) {
	n, err := rand.Int(g.reader, big.NewInt(codeRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Cooldown enforces a minimum interval between code requests for one purpose
type Cooldown struct {
	Interval time.Duration
}

// Check fails with *RateLimitError when lastRequestAt is within the interval.
// The caller records the new request time after a successful issuance.
func (c Cooldown) Check(purpose Purpose, lastRequestAt *time.Time, now time.Time) error {
	if lastRequestAt == nil || c.Interval <= 0 {
		return nil
	}

	elapsed := now.Sub(*lastRequestAt)
	if elapsed >= c.Interval {
		return nil
	}

	remaining := c.Interval - elapsed
	if remaining > c.Interval {
		remaining = c.Interval
	}

	return &RateLimitError{
		Purpose:          purpose,
		RemainingSeconds: int((remaining + time.Second - 1) / time.Second),
	}
}

// CodeSender delivers codes to the account holder. Implementations should
// not block on the actual delivery.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, toEmail, name, code string) error
	SendPasswordResetCode(ctx context.Context, toEmail, name, code string) error
}

// IssuedCode describes a freshly stored code without exposing its value
type IssuedCode struct {
	AccountID uuid.UUID
	Purpose   Purpose
	ExpiresAt time.Time
}

// OTPIssuer creates and stores codes, then hands them to the sender
type OTPIssuer struct {
	accounts  account.Store
	generator CodeGenerator
	cooldown  Cooldown
	sender    CodeSender
	ttl       time.Duration
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// Issue stores a new code for purpose on the account, replacing any previous one.
// Delivery failures are logged and never undo the issued code.
func (i *OTPIssuer) Issue(ctx context.Context, accountID uuid.UUID, purpose Purpose) (*IssuedCode, error) {
	var code string
	now := i.now()

	updated, err := i.accounts.Update(ctx, accountID, func(a *account.Account) error {
		if purpose == PurposeVerifyEmail && a.Verification.IsVerified {
			return ErrAlreadyVerified
		}

		if purpose.hasCooldown() {
			if err := i.cooldown.Check(purpose, purpose.codeState(a).LastRequestAt, now); err != nil {
				return err
			}
		}

		generated, err := i.attach(a, purpose, now)
		if err != nil {
			return err
		}
		code = generated
		return nil
	})
	if err != nil {
		if KindOf(err) == KindRateLimited {
			i.metrics.CodeThrottled(string(purpose))
		}
		return nil, mapStoreError(err)
	}

	i.announce(ctx, updated, purpose, code)

	return &IssuedCode{
		AccountID: updated.ID,
		Purpose:   purpose,
		ExpiresAt: *purpose.codeState(updated).ExpiresAt,
	}, nil
}

// attach stores a fresh code for purpose on a. It also serves accounts that
// are not persisted yet, so signup writes the account and its first code together.
func (i *OTPIssuer) attach(a *account.Account, purpose Purpose, now time.Time) (string, error) {
	code, err := i.generator.Generate()
	if err != nil {
		return "", err
	}
	purpose.codeState(a).Set(code, now.Add(i.ttl), now)

	if purpose == PurposePasswordReset {
		// a new code supersedes any authorization granted by the previous one
		closeResetGate(a)
	}
	return code, nil
}

// announce records and delivers a code once it has been stored
func (i *OTPIssuer) announce(ctx context.Context, a *account.Account, purpose Purpose, code string) {
	i.metrics.CodeIssued(string(purpose))
	i.deliver(ctx, a, purpose, code)
}

func (i *OTPIssuer) deliver(ctx context.Context, a *account.Account, purpose Purpose, code string) {
	if i.sender == nil {
		return
	}

	var err error
	switch purpose {
	case PurposePasswordReset:
		err = i.sender.SendPasswordResetCode(ctx, a.Email, a.Name.Full(), code)
	default:
		err = i.sender.SendVerificationCode(ctx, a.Email, a.Name.Full(), code)
	}
	if err != nil {
		i.logger.WithContext(ctx).Warn("failed to dispatch code email",
			"account_id", a.ID,
			"purpose", purpose,
			"error", err,
		)
	}
}

// mapStoreError converts account store errors into auth errors
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, account.ErrDuplicateEmail):
		return ErrEmailExists
	case KindOf(err) != KindInternal:
		return err
	default:
		return fmt.Errorf("failed to update account: %w", err)
	}
}
