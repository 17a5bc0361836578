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

// ErrNotOneTimeKind rejects audience kinds that are not single-use; the
// one-time store namespaces are reserved for them.
var ErrNotOneTimeKind = errors.New("service: audience kind is not one-time")

// OneTimeService owns single-use tokens for password-reset-style flows. Each
// audience kind gets its own namespace per principal; a token moves from
// issued to redeemed-or-expired and never back.
type OneTimeService struct {
	Codec        *jwtx.Codec
	KV           store.KV
	StoreTimeout time.Duration
}

func (s *OneTimeService) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.StoreTimeout
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Open issues a one-time token of the given kind for the principal and
// records its hash. Outstanding tokens of other kinds are untouched; the
// namespaces are disjoint even for the same principal.
func (s *OneTimeService) Open(ctx context.Context, p domain.Principal, kind domain.AudienceKind) (string, error) {
	if !kind.OneTime() {
		return "", ErrNotOneTimeKind
	}
	log := slogx.FromContext(ctx)

	token, exp, err := s.Codec.Issue(payloadFor(p), kind.Name(), kind.Lifetime())
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", kind.Name(), err)
	}

	hash, err := cryptox.HashToken(token)
	if err != nil {
		return "", fmt.Errorf("hash %s token: %w", kind.Name(), err)
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	key := store.OneTimeKey(kind.Name(), p.ID)
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
		log.Error("failed to persist one-time entry",
			"principal_id", p.ID.String(), "kind", kind.Name(), "error", err)
		return "", err
	}

	return token, nil
}

// Redeem consumes the presented token. The search and removal happen inside
// one atomic store update, so two concurrent redemptions of the same token
// yield exactly one success. A miss (no match, expired, already consumed) is
// a normal false outcome, not an error.
func (s *OneTimeService) Redeem(ctx context.Context, principal idx.ID, kind domain.AudienceKind, rawToken string) (bool, error) {
	if !kind.OneTime() {
		return false, ErrNotOneTimeKind
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	redeemed := false
	key := store.OneTimeKey(kind.Name(), principal)
	err := s.KV.Update(ctx, key, func(old []byte) ([]byte, error) {
		redeemed = false // the update may retry on contention
		if old == nil {
			return nil, nil
		}
		set, err := decodeEntrySet(old)
		if err != nil {
			return nil, err
		}
		set.Purge(time.Now())

		for i, e := range set.Entries {
			if cryptox.VerifyToken(rawToken, e.Hash) {
				set.Entries = append(set.Entries[:i], set.Entries[i+1:]...)
				redeemed = true
				break
			}
		}

		if set.Empty() {
			return nil, nil
		}
		return json.Marshal(set)
	})
	if err != nil {
		return false, err
	}
	return redeemed, nil
}

// ClearExpired purges dead entries in the kind's namespace for a principal.
func (s *OneTimeService) ClearExpired(ctx context.Context, principal idx.ID, kind domain.AudienceKind) error {
	if !kind.OneTime() {
		return ErrNotOneTimeKind
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	return purgeKey(ctx, s.KV, store.OneTimeKey(kind.Name(), principal))
}
