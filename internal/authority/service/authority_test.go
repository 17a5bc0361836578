package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/identity"
	"github.com/crewpay/warden/internal/authority/store/drivers/memory"
	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/idx"
)

// captureMailer records reset tokens instead of delivering them.
type captureMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *captureMailer) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.tokens, "no reset mail was captured")
	return m.tokens[len(m.tokens)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type authorityFixture struct {
	svc       *AuthorityService
	directory *identity.MemoryDirectory
	mailer    *captureMailer
	principal domain.Principal
	password  string
}

func newAuthorityFixture(t *testing.T) *authorityFixture {
	t.Helper()

	codec := newTestCodec(t)
	kv := memory.NewStore()
	t.Cleanup(func() { kv.Close() })

	directory := identity.NewMemoryDirectory()
	mailer := &captureMailer{}

	p := domain.Principal{
		ID:    idx.New(),
		Email: "payroll.admin@example.com",
		Role:  domain.RolePlatformAdmin,
	}
	const password = "original-password"
	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	directory.Add(p, hash)

	svc := &AuthorityService{
		Codec:      codec,
		Sessions:   &SessionService{Codec: codec, KV: kv, Kind: domain.AudSession},
		OneTime:    &OneTimeService{Codec: codec, KV: kv},
		Directory:  directory,
		Mailer:     mailer,
		AccessKind: domain.AudAccess,
		LostKind:   domain.AudLostPassword,
		ChangeKind: domain.AudChangePassword,
	}

	return &authorityFixture{
		svc:       svc,
		directory: directory,
		mailer:    mailer,
		principal: p,
		password:  password,
	}
}

func TestAuthorityLogin(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	pair, err := fx.svc.Login(ctx, fx.principal.Email, fx.password)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)

	_, err = fx.svc.Login(ctx, fx.principal.Email, "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = fx.svc.Login(ctx, "nobody@example.com", fx.password)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthorityRenew(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	pair, err := fx.svc.Login(ctx, fx.principal.Email, fx.password)
	require.NoError(t, err)

	renewed, err := fx.svc.Renew(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, renewed.AccessToken)
	require.Empty(t, renewed.RefreshToken, "renewal issues no new refresh token")

	// An access token carries the wrong audience for renewal.
	_, err = fx.svc.Renew(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = fx.svc.Renew(ctx, "garbage")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorityRenewAfterRevokeAll(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	pair, err := fx.svc.Login(ctx, fx.principal.Email, fx.password)
	require.NoError(t, err)

	require.NoError(t, fx.svc.RevokeAll(ctx, fx.principal.ID))

	_, err = fx.svc.Renew(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorityPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	// An open session that must die when the password changes.
	pair, err := fx.svc.Login(ctx, fx.principal.Email, fx.password)
	require.NoError(t, err)

	require.NoError(t, fx.svc.RequestPasswordReset(ctx, fx.principal.Email))
	lost := fx.mailer.last(t)

	change, err := fx.svc.ConfirmResetRedirect(ctx, lost)
	require.NoError(t, err)
	require.NotEmpty(t, change)

	// The reset link is single-use.
	_, err = fx.svc.ConfirmResetRedirect(ctx, lost)
	require.ErrorIs(t, err, ErrUnauthorized)

	const newPassword = "fresh-password"
	require.NoError(t, fx.svc.ExecutePasswordChange(ctx, change, newPassword))

	// The change token is single-use too.
	err = fx.svc.ExecutePasswordChange(ctx, change, newPassword)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Old credentials and old sessions are both dead.
	_, err = fx.svc.Login(ctx, fx.principal.Email, fx.password)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = fx.svc.Renew(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = fx.svc.Login(ctx, fx.principal.Email, newPassword)
	require.NoError(t, err)
}

func TestAuthorityResetUnknownEmailSendsNothing(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	require.NoError(t, fx.svc.RequestPasswordReset(ctx, "stranger@example.com"))
	require.Zero(t, fx.mailer.count())
}

func TestAuthorityChangeTokenNotValidAsResetLink(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	require.NoError(t, fx.svc.RequestPasswordReset(ctx, fx.principal.Email))
	change, err := fx.svc.ConfirmResetRedirect(ctx, fx.mailer.last(t))
	require.NoError(t, err)

	// The chained token only authorizes the change step, never another
	// redirect.
	_, err = fx.svc.ConfirmResetRedirect(ctx, change)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorityWeakPasswordRejected(t *testing.T) {
	ctx := context.Background()
	fx := newAuthorityFixture(t)

	err := fx.svc.ExecutePasswordChange(ctx, "irrelevant", "short")
	require.ErrorIs(t, err, ErrWeakPassword)
}
