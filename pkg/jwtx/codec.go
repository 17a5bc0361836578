// Package jwtx is the stateless token codec: it encodes claim sets into
// compact EdDSA-signed wire tokens and enforces issuer/audience/expiry
// invariants on decode. It never touches a store; everything here is a pure
// function of (token, key, expectations).
package jwtx

import (
	"crypto/ed25519"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decode failure taxonomy. Callers collapse all of these to a single
// unauthorized outcome at the wire, but logs and tests need to tell them
// apart.
var (
	ErrMalformed        = errors.New("jwtx: malformed token")
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
	ErrWrongIssuer      = errors.New("jwtx: issuer mismatch")
	ErrWrongAudience    = errors.New("jwtx: audience mismatch")
	ErrMissingClaim     = errors.New("jwtx: missing required claim")
	ErrExpired          = errors.New("jwtx: token expired")

	// ErrClockOverflow reports that now + lifetime overflowed the timestamp
	// range on issuance.
	ErrClockOverflow = errors.New("jwtx: expiry overflows timestamp range")
)

// Codec signs tokens for one issuing service. The key is loaded at startup
// and immutable for the process lifetime.
type Codec struct {
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey
	issuer string
}

// NewCodec binds an Ed25519 signing key to the issuer name stamped into
// every token.
func NewCodec(issuer string, key ed25519.PrivateKey) (*Codec, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 private key size")
	}
	if issuer == "" {
		return nil, errors.New("jwtx: issuer must not be empty")
	}
	return &Codec{
		key:    key,
		pub:    key.Public().(ed25519.PublicKey),
		issuer: issuer,
	}, nil
}

// Issuer returns the issuer name stamped into tokens.
func (c *Codec) Issuer() string { return c.issuer }

// PublicKey returns the verification key peers use to decode our tokens.
func (c *Codec) PublicKey() ed25519.PublicKey { return c.pub }

// Issue serializes and signs a claim set for the given audience, expiring
// after lifetime. It returns the wire token and its expiry so the caller can
// persist the expiry alongside the token hash.
func (c *Codec) Issue(p Payload, audience string, lifetime time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expUnix, err := unixAfter(now, lifetime)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := time.Unix(expUnix, 0).UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   p.PrincipalID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        NewJTI(),
		},
		PrincipalID: p.PrincipalID,
		Email:       p.Email,
		Role:        p.Role,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token, err := t.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// unixAfter computes the unix-seconds timestamp at now+d, failing with
// ErrClockOverflow when the addition leaves the timestamp range.
func unixAfter(now time.Time, d time.Duration) (int64, error) {
	sec := int64(d / time.Second)
	nowSec := now.Unix()
	if sec > 0 && nowSec > math.MaxInt64-sec {
		return 0, ErrClockOverflow
	}
	if sec < 0 && nowSec < math.MinInt64-sec {
		return 0, ErrClockOverflow
	}
	return nowSec + sec, nil
}

// Decode verifies the signature with pub and then checks, in order: issuer,
// audience, presence of the required claims, and expiry. The checks run in
// that fixed order so the first failure classifies the token.
func Decode(token string, pub ed25519.PublicKey, issuer, audience string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		// Claim validation is done by hand below so failures keep their
		// classification and ordering.
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		default:
			return Claims{}, ErrInvalidSignature
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidSignature
	}

	if claims.Issuer != issuer {
		return Claims{}, ErrWrongIssuer
	}
	if !slices.Contains(claims.Audience, audience) {
		return Claims{}, ErrWrongAudience
	}
	if claims.PrincipalID == "" || claims.ExpiresAt == nil || len(claims.Audience) == 0 {
		return Claims{}, ErrMissingClaim
	}
	if !time.Now().UTC().Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrExpired
	}

	return *claims, nil
}
