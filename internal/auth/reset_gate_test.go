package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/redmonkez12/chatty-auth/internal/account"
)

func TestResetGate_Transitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := ResetGate{Window: 10 * time.Minute}
	a := &account.Account{}

	assert.Equal(t, ResetIdle, gate.Phase(a, now))
	assert.ErrorIs(t, gate.Require(a, now), ErrResetNotAuthorized)

	a.Reset.Set("123456", now.Add(10*time.Minute), now)
	assert.Equal(t, ResetCodeRequested, gate.Phase(a, now))
	assert.ErrorIs(t, gate.Require(a, now), ErrResetNotAuthorized)

	a.Reset.Clear()
	gate.Open(a, now)
	assert.Equal(t, ResetCodeVerified, gate.Phase(a, now))
	assert.NoError(t, gate.Require(a, now))
	assert.NoError(t, gate.Require(a, now.Add(10*time.Minute)))
	assert.ErrorIs(t, gate.Require(a, now.Add(10*time.Minute+time.Nanosecond)), ErrResetNotAuthorized)

	gate.Close(a)
	assert.Equal(t, ResetIdle, gate.Phase(a, now))
	assert.False(t, a.Reset.CanResetPassword)
	assert.Nil(t, a.Reset.AuthorizedUntil)
}

func TestResetGate_NoWindowStaysOpen(t *testing.T) {
	now := time.Now()
	gate := ResetGate{}
	a := &account.Account{}

	gate.Open(a, now)
	assert.Nil(t, a.Reset.AuthorizedUntil)
	assert.NoError(t, gate.Require(a, now.Add(24*time.Hour)))
}

func TestResetPhase_String(t *testing.T) {
	assert.Equal(t, "idle", ResetIdle.String())
	assert.Equal(t, "code_requested", ResetCodeRequested.String())
	assert.Equal(t, "code_verified", ResetCodeVerified.String())
}
