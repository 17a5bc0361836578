package identity

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/pkg/idx"
)

// MemoryDirectory is an in-process Directory for dev mode and tests.
type MemoryDirectory struct {
	mu     sync.RWMutex
	byID   map[idx.ID]*record
	byMail map[string]idx.ID
}

type record struct {
	principal    domain.Principal
	passwordHash string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:   make(map[idx.ID]*record),
		byMail: make(map[string]idx.ID),
	}
}

// Add registers a principal with its password hash. Intended for seeding.
func (d *MemoryDirectory) Add(p domain.Principal, passwordHash string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byID[p.ID] = &record{principal: p, passwordHash: passwordHash}
	d.byMail[normalize(p.Email)] = p.ID
}

func (d *MemoryDirectory) LookupByEmail(ctx context.Context, email string) (domain.Principal, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byMail[normalize(email)]
	if !ok {
		return domain.Principal{}, "", ErrNotFound
	}
	rec := d.byID[id]
	return rec.principal, rec.passwordHash, nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, id idx.ID) (domain.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[id]
	if !ok {
		return domain.Principal{}, ErrNotFound
	}
	return rec.principal, nil
}

func (d *MemoryDirectory) SetPasswordHash(ctx context.Context, id idx.ID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.passwordHash = hash
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LogMailer is a Mailer stub that records the delivery in the log instead of
// sending anything. The token itself is only emitted at debug level.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.Logger.Info("password reset token issued", "email", email)
	m.Logger.Debug("password reset token", "email", email, "token", token)
	return nil
}
