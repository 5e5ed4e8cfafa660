package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Presence is the chat presence of an account
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceTyping  Presence = "typing"
)

// Valid reports whether p is a known presence value
func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceOffline, PresenceTyping:
		return true
	}
	return false
}

// Name is the display name of an account holder
type Name struct {
	First string `json:"firstName"`
	Last  string `json:"lastName"`
}

// Full returns "First Last"
func (n Name) Full() string {
	return strings.TrimSpace(n.First + " " + n.Last)
}

// CodeState holds one outstanding one-time code and its issuance marker.
// Code and ExpiresAt are either both set or both nil. FailedAttempts counts
// wrong submissions against the current code.
type CodeState struct {
	Code           *string
	ExpiresAt      *time.Time
	LastRequestAt  *time.Time
	FailedAttempts int
}

// Set stores a new code, replacing any previous one
func (c *CodeState) Set(code string, expiresAt, requestedAt time.Time) {
	c.Code = &code
	c.ExpiresAt = &expiresAt
	c.LastRequestAt = &requestedAt
	c.FailedAttempts = 0
}

// Clear removes the outstanding code. The request marker is kept so the
// cooldown still applies after a successful verification.
func (c *CodeState) Clear() {
	c.Code = nil
	c.ExpiresAt = nil
	c.FailedAttempts = 0
}

// HasCode reports whether a code is outstanding
func (c *CodeState) HasCode() bool {
	return c.Code != nil && c.ExpiresAt != nil
}

// VerificationState tracks signup email verification
type VerificationState struct {
	IsVerified bool
	CodeState
}

// ResetState tracks the password reset flow. AuthorizedUntil bounds how long
// CanResetPassword stays usable after the code was verified.
type ResetState struct {
	CanResetPassword bool
	AuthorizedUntil  *time.Time
	CodeState
}

// Account is the credential record for one email address
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         Name
	AvatarRef    string
	Presence     Presence
	Verification VerificationState
	Reset        ResetState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy so callers can mutate it without touching stored state
func (a *Account) Clone() *Account {
	c := *a
	c.Verification.CodeState = a.Verification.CodeState.clone()
	c.Reset.CodeState = a.Reset.CodeState.clone()
	if a.Reset.AuthorizedUntil != nil {
		v := *a.Reset.AuthorizedUntil
		c.Reset.AuthorizedUntil = &v
	}
	return &c
}

func (c CodeState) clone() CodeState {
	out := CodeState{FailedAttempts: c.FailedAttempts}
	if c.Code != nil {
		v := *c.Code
		out.Code = &v
	}
	if c.ExpiresAt != nil {
		v := *c.ExpiresAt
		out.ExpiresAt = &v
	}
	if c.LastRequestAt != nil {
		v := *c.LastRequestAt
		out.LastRequestAt = &v
	}
	return out
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
