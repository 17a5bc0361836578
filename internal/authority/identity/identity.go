// Package identity holds the authority's view of its external
// collaborators: the user-management service that owns principals and the
// out-of-band delivery channel for reset tokens. The authority never stores
// credentials itself; it only reads and writes password hashes through the
// directory.
package identity

import (
	"context"
	"errors"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/pkg/idx"
)

// ErrNotFound reports an unknown principal or email.
var ErrNotFound = errors.New("identity: not found")

// Directory is the user-management collaborator. It supplies a principal id
// and role when a session is opened and accepts the updated hash after a
// password change.
type Directory interface {
	// LookupByEmail returns the principal and its stored password hash.
	LookupByEmail(ctx context.Context, email string) (domain.Principal, string, error)

	// Lookup resolves a principal by id.
	Lookup(ctx context.Context, id idx.ID) (domain.Principal, error)

	// SetPasswordHash replaces the stored password hash for a principal.
	SetPasswordHash(ctx context.Context, id idx.ID, hash string) error
}

// Mailer delivers one-time reset tokens out-of-band. Delivery itself is out
// of scope; implementations may hand off to a mail service or just log.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}
