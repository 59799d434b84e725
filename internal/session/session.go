package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fakeyudi/storyline/internal/story"
)

// Session is the authenticated identity: an opaque bearer token plus the
// user it was issued to.
type Session struct {
	Token   string     `json:"token"`
	User    story.User `json:"user"`
	SavedAt time.Time  `json:"saved_at"`
}

// Valid reports whether s carries a usable token as of now. Tokens that
// parse as JWTs are checked against their exp claim without verifying the
// signature; anything else is treated as opaque and valid until the backend
// says otherwise.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	exp, ok := tokenExpiry(s.Token)
	if !ok {
		return true
	}
	return now.Before(exp)
}

// tokenExpiry reads the exp claim of a JWT. ok is false when the token is not
// a JWT or carries no expiry.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
