package jwtx

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
)

// Payload is the service-specific subject data embedded in every token,
// flattened alongside the registered claims.
type Payload struct {
	PrincipalID string `json:"principal_id"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Claims is the full signed claim set: registered aud/iss/exp plus the
// flattened payload. A claims value is produced fresh on every issuance and
// never mutated afterwards.
type Claims struct {
	jwt.RegisteredClaims

	PrincipalID string `json:"principal_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Payload extracts the embedded payload fields from the claims.
func (c *Claims) Payload() Payload {
	return Payload{
		PrincipalID: c.PrincipalID,
		Email:       c.Email,
		Role:        c.Role,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
