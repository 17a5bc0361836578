package store

import (
	"context"
	"errors"

	"github.com/crewpay/warden/pkg/idx"
)

var (
	// ErrNotFound reports an absent key. A principal with no stored
	// sessions is not an error at the service layer; drivers still report
	// absence so callers can tell "empty" from "unavailable".
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable reports a backend failure (network, serialization,
	// timeout). It is fatal to the call and surfaces as an internal error.
	ErrUnavailable = errors.New("store: unavailable")
)

// Key namespacing for the persisted entry sets: "{category}--{principal}".
const keySep = "--"

// SessionKey is the key holding a principal's refresh session entry set.
func SessionKey(principal idx.ID) string {
	return "sessions" + keySep + principal.String()
}

// OneTimeKey is the key holding a principal's one-time entry set for one
// audience kind. Distinct kinds never share a namespace.
func OneTimeKey(audience string, principal idx.ID) string {
	return "one_time_" + audience + keySep + principal.String()
}

// SessionPrefix and OneTimePrefix select whole categories for sweeps.
func SessionPrefix() string                { return "sessions" + keySep }
func OneTimePrefix(audience string) string { return "one_time_" + audience + keySep }

// UpdateFunc transforms the current value of a key. It receives nil when the
// key is absent; returning a nil value deletes the key; returning an error
// aborts the update without writing.
type UpdateFunc func(old []byte) ([]byte, error)

// KV is the key-value backend holding session and one-time entry sets.
// Update must be an atomic read-modify-write per key: concurrent updates of
// the same key must serialize, never interleave. That property carries the
// exactly-once guarantee for one-time token redemption.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
