package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

// DefaultMaxCodeAttempts is how many wrong submissions a code survives
const DefaultMaxCodeAttempts = 5

// CredentialVerifier checks submitted codes against the stored ones.
// A matching code is consumed in the same atomic update that checks it;
// a code that collects maxAttempts mismatches is discarded.
type CredentialVerifier struct {
	accounts    account.Store
	gate        ResetGate
	maxAttempts int
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Verify consumes the code for purpose on the account with the given email.
// Email verification marks the account verified; a reset code opens the reset gate.
func (v *CredentialVerifier) Verify(ctx context.Context, email string, purpose Purpose, submitted string) (*account.Account, error) {
	existing, err := v.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, mapStoreError(err)
	}

	now := v.now()
	// a mismatch is reported after the update so the attempt counter is stored
	var mismatch error
	updated, err := v.accounts.Update(ctx, existing.ID, func(a *account.Account) error {
		mismatch = nil
		if purpose == PurposeVerifyEmail && a.Verification.IsVerified {
			return ErrAlreadyVerified
		}

		state := purpose.codeState(a)
		if !state.HasCode() || now.After(*state.ExpiresAt) {
			return ErrCodeExpired
		}
		if subtle.ConstantTimeCompare([]byte(*state.Code), []byte(submitted)) != 1 {
			state.FailedAttempts++
			if v.maxAttempts > 0 && state.FailedAttempts >= v.maxAttempts {
				state.Clear()
			}
			mismatch = ErrCodeMismatch
			return nil
		}

		state.Clear()
		switch purpose {
		case PurposeVerifyEmail:
			a.Verification.IsVerified = true
		case PurposePasswordReset:
			v.gate.Open(a, now)
		}
		return nil
	})
	if err == nil {
		err = mismatch
	}
	if err != nil {
		v.metrics.CodeVerified(string(purpose), KindOf(err).String())
		return nil, mapStoreError(err)
	}

	v.metrics.CodeVerified(string(purpose), "success")
	return updated, nil
}
