package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// MutateFunc changes an account inside an atomic update.
// Returning an error aborts the update and leaves the stored record untouched.
type MutateFunc func(a *Account) error

// Store is the durable account storage used by the auth core.
// Update must serialize concurrent mutations of the same account.
type Store interface {
	Create(ctx context.Context, a *Account) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Account, error)
}
