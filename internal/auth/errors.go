package auth

import (
	"errors"
	"fmt"

	"github.com/redmonkez12/chatty-auth/internal/account"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrCodeExpired        = errors.New("code expired")
	ErrCodeMismatch       = errors.New("invalid code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("code requested too recently")
	ErrResetNotAuthorized = errors.New("verify reset code first")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Kind classifies an error for the transport boundary
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindExpired
	KindMismatch
	KindRateLimited
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindMismatch:
		return "mismatch"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// RateLimitError is returned when a code is requested inside the cooldown window
type RateLimitError struct {
	Purpose          Purpose
	RemainingSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("please wait %ds before requesting a new code", e.RemainingSeconds)
}

// Is makes errors.Is(err, ErrRateLimited) match
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// KindOf maps err onto the error taxonomy. Unknown errors are internal.
func KindOf(err error) Kind {
	var validationErr *ValidationError

	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, account.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmailExists), errors.Is(err, account.ErrDuplicateEmail), errors.Is(err, ErrAlreadyVerified):
		return KindConflict
	case errors.Is(err, ErrCodeExpired):
		return KindExpired
	case errors.Is(err, ErrCodeMismatch):
		return KindMismatch
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrResetNotAuthorized),
		errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		return KindUnauthorized
	default:
		return KindInternal
	}
}
