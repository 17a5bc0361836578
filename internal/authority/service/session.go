package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/store"
	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/idx"
	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

// DefaultStoreTimeout bounds every round-trip to the session backend. A call
// that does not complete in time surfaces as a store failure, never as a
// silent success.
const DefaultStoreTimeout = 3 * time.Second

// SessionService owns the durable mapping from principal to hashed refresh
// token entries. Raw tokens never touch the store; only Argon2id hashes and
// expiries are persisted, so a leaked store yields nothing replayable.
type SessionService struct {
	Codec        *jwtx.Codec
	KV           store.KV
	Kind         domain.AudienceKind // AudSession, lifetime possibly overridden
	StoreTimeout time.Duration
}

func (s *SessionService) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.StoreTimeout
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// OpenSession issues a refresh token for the principal and records its hash
// alongside existing entries, purging dead ones on the way through. The raw
// token is returned to the caller and never persisted.
func (s *SessionService) OpenSession(ctx context.Context, p domain.Principal) (string, error) {
	log := slogx.FromContext(ctx)

	token, exp, err := s.Codec.Issue(payloadFor(p), s.Kind.Name(), s.Kind.Lifetime())
	if err != nil {
		return "", fmt.Errorf("issue refresh token: %w", err)
	}

	hash, err := cryptox.HashToken(token)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	key := store.SessionKey(p.ID)
	err = s.KV.Update(ctx, key, func(old []byte) ([]byte, error) {
		set, err := decodeEntrySet(old)
		if err != nil {
			return nil, err
		}
		set.Purge(time.Now())
		set.Add(domain.SessionEntry{Hash: hash, ExpiresAt: exp.Unix()})
		return json.Marshal(set)
	})
	if err != nil {
		log.Error("failed to persist session entry", "principal_id", p.ID.String(), "error", err)
		return "", err
	}

	log.Debug("session opened", "principal_id", p.ID.String(), "expires_at", exp)
	return token, nil
}

// Validate reports whether the presented wire token matches a live session
// entry. The match runs through the hash's verify operation; the stored
// hashes are salted, so re-hashing and comparing bytes can never work.
// A principal with no stored sessions is simply "no valid session".
func (s *SessionService) Validate(ctx context.Context, principal idx.ID, rawToken string) (bool, error) {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	raw, err := s.KV.Get(ctx, store.SessionKey(principal))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	set, err := decodeEntrySet(raw)
	if err != nil {
		return false, err
	}
	set.Purge(time.Now())

	for _, e := range set.Entries {
		if cryptox.VerifyToken(rawToken, e.Hash) {
			return true, nil
		}
	}
	return false, nil
}

// RevokeAll clears every session entry for the principal, forcing re-login
// everywhere.
func (s *SessionService) RevokeAll(ctx context.Context, principal idx.ID) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	return s.KV.Del(ctx, store.SessionKey(principal))
}

// ClearExpired purges dead entries and persists the surviving set. The key
// is dropped entirely once nothing survives.
func (s *SessionService) ClearExpired(ctx context.Context, principal idx.ID) error {
	ctx, cancel := s.timeout(ctx)
	defer cancel()

	return purgeKey(ctx, s.KV, store.SessionKey(principal))
}

// purgeKey rewrites a stored entry set without its expired entries, deleting
// the key when the set comes up empty.
func purgeKey(ctx context.Context, kv store.KV, key string) error {
	return kv.Update(ctx, key, func(old []byte) ([]byte, error) {
		if old == nil {
			return nil, nil
		}
		set, err := decodeEntrySet(old)
		if err != nil {
			return nil, err
		}
		set.Purge(time.Now())
		if set.Empty() {
			return nil, nil
		}
		return json.Marshal(set)
	})
}

func decodeEntrySet(raw []byte) (domain.EntrySet, error) {
	var set domain.EntrySet
	if raw == nil {
		return set, nil
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return set, fmt.Errorf("corrupt entry set: %w: %w", store.ErrUnavailable, err)
	}
	return set, nil
}

func payloadFor(p domain.Principal) jwtx.Payload {
	return jwtx.Payload{
		PrincipalID: p.ID.String(),
		Email:       p.Email,
		Role:        string(p.Role),
	}
}
