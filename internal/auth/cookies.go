package auth

import (
	"errors"
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the session token
const SessionCookieName = "token"

var ErrNoSessionCookie = errors.New("session cookie not found")

// CookieSink writes the session token to the response as an HTTP-only cookie
type CookieSink struct {
	secure bool
}

// NewCookieSink returns a sink; secure should be true outside development
func NewCookieSink(secure bool) *CookieSink {
	return &CookieSink{secure: secure}
}

// SetSession sets the session cookie with maxAge matching the token lifetime
func (c *CookieSink) SetSession(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		MaxAge:   int(s.MaxAge.Seconds()),
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie. Expires covers clients that
// ignore Max-Age.
func (c *CookieSink) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionTokenFromCookie reads the session token from the request cookie
func GetSessionTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSessionCookie
	}
	return cookie.Value, nil
}
