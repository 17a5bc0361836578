package service

import (
	"context"
	"errors"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/identity"
	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/idx"
	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("service: invalid credentials")

	// ErrUnauthorized is the single outcome every token-validation failure
	// collapses to. The precise reason (signature, issuer, audience,
	// expiry, consumed token) stays in the logs; the wire never learns it.
	ErrUnauthorized = errors.New("service: unauthorized")

	ErrWeakPassword = errors.New("service: password too short")
)

// MinPasswordLength applies to new passwords set through the reset flow.
const MinPasswordLength = 8

// AuthorityService orchestrates the token codec, session store and one-time
// store into the flows the platform's services call: open session, renew
// access token, and the chained password-reset purposes.
type AuthorityService struct {
	Codec     *jwtx.Codec
	Sessions  *SessionService
	OneTime   *OneTimeService
	Directory identity.Directory
	Mailer    identity.Mailer

	AccessKind domain.AudienceKind // AudAccess
	LostKind   domain.AudienceKind // AudLostPassword
	ChangeKind domain.AudienceKind // AudChangePassword
}

// Login verifies credentials against the directory and opens a session,
// returning a fresh access/refresh token pair.
func (s *AuthorityService) Login(ctx context.Context, email, password string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	p, passwordHash, err := s.Directory.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			log.Info("login attempt for unknown email")
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, err
	}

	if cryptox.VerifyPassword(password, passwordHash) != nil {
		log.Info("login password verification failed", "principal_id", p.ID.String())
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	refresh, err := s.Sessions.OpenSession(ctx, p)
	if err != nil {
		return domain.TokenPair{}, err
	}

	access, _, err := s.Codec.Issue(payloadFor(p), s.AccessKind.Name(), s.AccessKind.Lifetime())
	if err != nil {
		return domain.TokenPair{}, err
	}

	log.Info("session opened", "principal_id", p.ID.String(), "role", string(p.Role))
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessKind.Lifetime(),
	}, nil
}

// Renew exchanges a valid refresh token for a fresh short-lived access
// token. Expired entries are cleared before validation so a dead session can
// never renew.
func (s *AuthorityService) Renew(ctx context.Context, rawRefresh string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	claims, err := jwtx.Decode(rawRefresh, s.Codec.PublicKey(), s.Codec.Issuer(), s.Sessions.Kind.Name())
	if err != nil {
		log.Info("refresh token rejected", "reason", err)
		return domain.TokenPair{}, ErrUnauthorized
	}

	principal, err := idx.Parse(claims.PrincipalID)
	if err != nil {
		log.Warn("refresh token carries malformed principal id")
		return domain.TokenPair{}, ErrUnauthorized
	}

	if err := s.Sessions.ClearExpired(ctx, principal); err != nil {
		return domain.TokenPair{}, err
	}

	ok, err := s.Sessions.Validate(ctx, principal, rawRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !ok {
		log.Info("refresh token not found among live sessions", "principal_id", principal.String())
		return domain.TokenPair{}, ErrUnauthorized
	}

	access, _, err := s.Codec.Issue(claims.Payload(), s.AccessKind.Name(), s.AccessKind.Lifetime())
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   s.AccessKind.Lifetime(),
	}, nil
}

// RevokeAll clears every session for the principal.
func (s *AuthorityService) RevokeAll(ctx context.Context, principal idx.ID) error {
	return s.Sessions.RevokeAll(ctx, principal)
}

// RequestPasswordReset issues a lost-password token and hands it to the
// mailer. The flow runs identically whether or not the email is known (a
// dummy principal gets a token too) so response timing never reveals
// account existence. Only a genuine hit gets mail.
func (s *AuthorityService) RequestPasswordReset(ctx context.Context, email string) error {
	log := slogx.FromContext(ctx)

	p, _, err := s.Directory.LookupByEmail(ctx, email)
	known := err == nil
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return err
	}
	if !known {
		p = domain.Principal{ID: idx.New(), Email: email, Role: domain.RoleClientIndividual}
	}

	token, err := s.OneTime.Open(ctx, p, s.LostKind)
	if err != nil {
		return err
	}

	if known {
		if err := s.Mailer.SendPasswordReset(ctx, p.Email, token); err != nil {
			return err
		}
		log.Info("password reset requested", "principal_id", p.ID.String())
	} else {
		log.Info("password reset requested for unknown email")
	}
	return nil
}

// ConfirmResetRedirect redeems a lost-password token and, only on success,
// chains it into a change-password token. The two purposes are separate
// single-use namespaces: a reset link can never be replayed to skip straight
// to changing the password.
func (s *AuthorityService) ConfirmResetRedirect(ctx context.Context, rawLost string) (string, error) {
	log := slogx.FromContext(ctx)

	claims, err := jwtx.Decode(rawLost, s.Codec.PublicKey(), s.Codec.Issuer(), s.LostKind.Name())
	if err != nil {
		log.Info("lost-password token rejected", "reason", err)
		return "", ErrUnauthorized
	}

	principal, err := idx.Parse(claims.PrincipalID)
	if err != nil {
		return "", ErrUnauthorized
	}

	ok, err := s.OneTime.Redeem(ctx, principal, s.LostKind, rawLost)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Info("lost-password token already consumed or unknown", "principal_id", principal.String())
		return "", ErrUnauthorized
	}

	p, err := s.Directory.Lookup(ctx, principal)
	if err != nil {
		// Dummy principals from anti-oracle issuance land here.
		if errors.Is(err, identity.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", err
	}

	return s.OneTime.Open(ctx, p, s.ChangeKind)
}

// ExecutePasswordChange redeems a change-password token, stores the new
// password hash and revokes every session for the principal so stale refresh
// tokens die with the old password.
func (s *AuthorityService) ExecutePasswordChange(ctx context.Context, rawChange, newPassword string) error {
	log := slogx.FromContext(ctx)

	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	claims, err := jwtx.Decode(rawChange, s.Codec.PublicKey(), s.Codec.Issuer(), s.ChangeKind.Name())
	if err != nil {
		log.Info("change-password token rejected", "reason", err)
		return ErrUnauthorized
	}

	principal, err := idx.Parse(claims.PrincipalID)
	if err != nil {
		return ErrUnauthorized
	}

	ok, err := s.OneTime.Redeem(ctx, principal, s.ChangeKind, rawChange)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("change-password token already consumed or unknown", "principal_id", principal.String())
		return ErrUnauthorized
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Directory.SetPasswordHash(ctx, principal, hash); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}

	if err := s.Sessions.RevokeAll(ctx, principal); err != nil {
		return err
	}

	log.Info("password changed and sessions revoked", "principal_id", principal.String())
	return nil
}
