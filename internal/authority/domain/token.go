package domain

import "time"

// TokenPair is what opening or renewing a session returns: the short-lived
// access token (JWT) and the long-lived refresh token backing the session.
// The HTTP layer owns the wire representation; this type never marshals
// directly.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // typically "Bearer"
	ExpiresIn    time.Duration
}
