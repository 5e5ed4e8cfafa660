package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the accounts table row. Nullable code columns map to pointers
// and are cleared by assigning nil.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	FirstName    string    `bun:"first_name,notnull"`
	LastName     string    `bun:"last_name,notnull"`
	AvatarRef    string    `bun:"avatar_ref,notnull,default:''"`
	Presence     string    `bun:"presence,notnull,default:'offline'"`

	IsVerified       bool       `bun:"is_verified,notnull,default:false"`
	OTPCode          *string    `bun:"otp_code"`
	OTPExpiresAt     *time.Time `bun:"otp_expires_at"`
	LastOTPRequestAt *time.Time `bun:"last_otp_request_at"`
	OTPAttempts      int        `bun:"otp_failed_attempts,notnull,default:0"`

	ResetCode          *string    `bun:"reset_code"`
	ResetExpiresAt     *time.Time `bun:"reset_expires_at"`
	CanResetPassword   bool       `bun:"can_reset_password,notnull,default:false"`
	ResetAuthorizedTo  *time.Time `bun:"reset_authorized_until"`
	LastResetRequestAt *time.Time `bun:"last_reset_request_at"`
	ResetAttempts      int        `bun:"reset_failed_attempts,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
