package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/redmonkez12/chatty-auth/internal/account"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&ValidationError{Field: "email", Message: "is required"}, KindValidation},
		{ErrAccountNotFound, KindNotFound},
		{fmt.Errorf("lookup: %w", account.ErrNotFound), KindNotFound},
		{ErrEmailExists, KindConflict},
		{account.ErrDuplicateEmail, KindConflict},
		{ErrAlreadyVerified, KindConflict},
		{ErrCodeExpired, KindExpired},
		{ErrCodeMismatch, KindMismatch},
		{&RateLimitError{Purpose: PurposeVerifyEmail, RemainingSeconds: 3}, KindRateLimited},
		{ErrInvalidCredentials, KindUnauthorized},
		{ErrResetNotAuthorized, KindUnauthorized},
		{ErrInvalidToken, KindUnauthorized},
		{ErrExpiredToken, KindUnauthorized},
		{errors.New("connection reset"), KindInternal},
		{nil, KindInternal},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Purpose: PurposePasswordReset, RemainingSeconds: 42}
	assert.Equal(t, "please wait 42s before requesting a new code", err.Error())
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrRateLimited)
}

func TestMapStoreError(t *testing.T) {
	assert.NoError(t, mapStoreError(nil))
	assert.ErrorIs(t, mapStoreError(account.ErrNotFound), ErrAccountNotFound)
	assert.ErrorIs(t, mapStoreError(account.ErrDuplicateEmail), ErrEmailExists)
	assert.ErrorIs(t, mapStoreError(ErrCodeMismatch), ErrCodeMismatch)

	cause := errors.New("tx aborted")
	err := mapStoreError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
}
