package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/chatty-auth/internal/database"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// Repository handles account persistence in Postgres
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account into the database
func (r *Repository) Create(ctx context.Context, a *Account) (*Account, error) {
	row := mapModelToDBAccount(a)
	row.Email = NormalizeEmail(row.Email)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Presence == "" {
		row.Presence = string(PresenceOffline)
	}
	now := time.Now()
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(row).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return mapDBAccountToModel(row), nil
}

// FindByEmail retrieves an account by normalized email
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := new(database.Account)
	err := r.db.NewSelect().
		Model(row).
		Where("email = ?", NormalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return mapDBAccountToModel(row), nil
}

// FindByID retrieves an account by ID
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := new(database.Account)
	err := r.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return mapDBAccountToModel(row), nil
}

// Update locks the account row, applies mutate and writes the result back
// in one transaction. Concurrent updates of the same account queue on the row lock.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Account, error) {
	var updated *Account

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(database.Account)
		err := tx.NewSelect().
			Model(row).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		working := mapDBAccountToModel(row)
		if err := mutate(working); err != nil {
			return err
		}

		next := mapModelToDBAccount(working)
		next.ID = row.ID
		next.Email = row.Email
		next.CreatedAt = row.CreatedAt
		next.UpdatedAt = time.Now()

		if _, err := tx.NewUpdate().Model(next).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		updated = mapDBAccountToModel(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// mapDBAccountToModel converts database model to domain model
func mapDBAccountToModel(row *database.Account) *Account {
	return &Account{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Name:         Name{First: row.FirstName, Last: row.LastName},
		AvatarRef:    row.AvatarRef,
		Presence:     Presence(row.Presence),
		Verification: VerificationState{
			IsVerified: row.IsVerified,
			CodeState: CodeState{
				Code:           row.OTPCode,
				ExpiresAt:      row.OTPExpiresAt,
				LastRequestAt:  row.LastOTPRequestAt,
				FailedAttempts: row.OTPAttempts,
			},
		},
		Reset: ResetState{
			CanResetPassword: row.CanResetPassword,
			AuthorizedUntil:  row.ResetAuthorizedTo,
			CodeState: CodeState{
				Code:           row.ResetCode,
				ExpiresAt:      row.ResetExpiresAt,
				LastRequestAt:  row.LastResetRequestAt,
				FailedAttempts: row.ResetAttempts,
			},
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// mapModelToDBAccount converts domain model to database model
func mapModelToDBAccount(a *Account) *database.Account {
	return &database.Account{
		ID:                 a.ID,
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		FirstName:          a.Name.First,
		LastName:           a.Name.Last,
		AvatarRef:          a.AvatarRef,
		Presence:           string(a.Presence),
		IsVerified:         a.Verification.IsVerified,
		OTPCode:            a.Verification.Code,
		OTPExpiresAt:       a.Verification.ExpiresAt,
		LastOTPRequestAt:   a.Verification.LastRequestAt,
		OTPAttempts:        a.Verification.FailedAttempts,
		ResetCode:          a.Reset.Code,
		ResetExpiresAt:     a.Reset.ExpiresAt,
		CanResetPassword:   a.Reset.CanResetPassword,
		ResetAuthorizedTo:  a.Reset.AuthorizedUntil,
		LastResetRequestAt: a.Reset.LastRequestAt,
		ResetAttempts:      a.Reset.FailedAttempts,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}
