package auth

import (
	"time"

	"github.com/redmonkez12/chatty-auth/internal/account"
)

// ResetPhase is the position of an account in the password reset flow
type ResetPhase int

const (
	ResetIdle ResetPhase = iota
	ResetCodeRequested
	ResetCodeVerified
)

func (p ResetPhase) String() string {
	switch p {
	case ResetCodeRequested:
		return "code_requested"
	case ResetCodeVerified:
		return "code_verified"
	default:
		return "idle"
	}
}

// ResetGate authorizes exactly one password change per verified reset code.
//
//	Idle --request--> CodeRequested --verify--> CodeVerified --reset--> Idle
//
// A new request from CodeVerified goes back to CodeRequested and closes the gate.
type ResetGate struct {
	// Window is how long the gate stays open after verification. Zero means
	// until the next reset or request.
	Window time.Duration
}

// Phase reports the current phase of a at time now
func (g ResetGate) Phase(a *account.Account, now time.Time) ResetPhase {
	if g.isOpen(a, now) {
		return ResetCodeVerified
	}
	if a.Reset.HasCode() {
		return ResetCodeRequested
	}
	return ResetIdle
}

// Open records a successful reset code verification
func (g ResetGate) Open(a *account.Account, now time.Time) {
	a.Reset.CanResetPassword = true
	a.Reset.AuthorizedUntil = nil
	if g.Window > 0 {
		until := now.Add(g.Window)
		a.Reset.AuthorizedUntil = &until
	}
}

// Require fails with ErrResetNotAuthorized unless the gate is open
func (g ResetGate) Require(a *account.Account, now time.Time) error {
	if !g.isOpen(a, now) {
		return ErrResetNotAuthorized
	}
	return nil
}

// Close returns the account to Idle after a password change
func (g ResetGate) Close(a *account.Account) {
	closeResetGate(a)
	a.Reset.Clear()
}

func (g ResetGate) isOpen(a *account.Account, now time.Time) bool {
	if !a.Reset.CanResetPassword {
		return false
	}
	return a.Reset.AuthorizedUntil == nil || !now.After(*a.Reset.AuthorizedUntil)
}

func closeResetGate(a *account.Account) {
	a.Reset.CanResetPassword = false
	a.Reset.AuthorizedUntil = nil
}
