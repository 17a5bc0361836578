package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/store"
	"github.com/crewpay/warden/internal/authority/store/drivers/memory"
	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/idx"
	"github.com/crewpay/warden/pkg/jwtx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "warden-service-test")
	if err != nil {
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func newTestCodec(t *testing.T) *jwtx.Codec {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	codec, err := jwtx.NewCodec("crewpay-warden", key)
	require.NoError(t, err)
	return codec
}

func newSessionService(t *testing.T, kind domain.AudienceKind) (*SessionService, *memory.Store) {
	t.Helper()

	kv := memory.NewStore()
	t.Cleanup(func() { kv.Close() })

	return &SessionService{
		Codec: newTestCodec(t),
		KV:    kv,
		Kind:  kind,
	}, kv
}

func testPrincipal() domain.Principal {
	return domain.Principal{
		ID:    idx.New(),
		Email: "worker@example.com",
		Role:  domain.RoleClientIndividual,
	}
}

func TestSessionServiceOpenAndValidate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, domain.AudSession)
	p := testPrincipal()

	token, err := svc.OpenSession(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := svc.Validate(ctx, p.ID, token)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Validate(ctx, p.ID, "not-the-token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionServiceValidateUnknownPrincipal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, domain.AudSession)

	ok, err := svc.Validate(ctx, idx.New(), "whatever")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionServiceMultipleSessionsCoexist(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, domain.AudSession)
	p := testPrincipal()

	first, err := svc.OpenSession(ctx, p)
	require.NoError(t, err)
	second, err := svc.OpenSession(ctx, p)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	for _, token := range []string{first, second} {
		ok, err := svc.Validate(ctx, p.ID, token)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSessionServiceRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t, domain.AudSession)
	p := testPrincipal()

	token, err := svc.OpenSession(ctx, p)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, p.ID))

	ok, err := svc.Validate(ctx, p.ID, token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionServiceExpiredEntriesPurged(t *testing.T) {
	ctx := context.Background()
	// A negative lifetime writes an entry that is already expired.
	svc, kv := newSessionService(t, domain.AudSession.WithLifetime(-time.Minute))
	p := testPrincipal()

	token, err := svc.OpenSession(ctx, p)
	require.NoError(t, err)

	ok, err := svc.Validate(ctx, p.ID, token)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.ClearExpired(ctx, p.ID))

	_, err = kv.Get(ctx, store.SessionKey(p.ID))
	require.ErrorIs(t, err, store.ErrNotFound)
}

// stalledKV hangs every round-trip until the caller's deadline expires.
type stalledKV struct{}

func (stalledKV) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledKV) Set(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledKV) Del(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledKV) Update(ctx context.Context, _ string, _ store.UpdateFunc) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledKV) Keys(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledKV) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledKV) Close() error { return nil }

func TestSessionServiceStoreTimeout(t *testing.T) {
	ctx := context.Background()
	svc := &SessionService{
		Codec:        newTestCodec(t),
		KV:           stalledKV{},
		Kind:         domain.AudSession,
		StoreTimeout: time.Millisecond,
	}
	p := testPrincipal()

	_, err := svc.OpenSession(ctx, p)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := svc.Validate(ctx, p.ID, "any-token")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ok)

	require.ErrorIs(t, svc.RevokeAll(ctx, p.ID), context.DeadlineExceeded)
}

func TestSessionServiceCorruptEntrySet(t *testing.T) {
	ctx := context.Background()
	svc, kv := newSessionService(t, domain.AudSession)
	p := testPrincipal()

	require.NoError(t, kv.Set(ctx, store.SessionKey(p.ID), []byte("{not json")))

	_, err := svc.Validate(ctx, p.ID, "anything")
	require.ErrorIs(t, err, store.ErrUnavailable)
}
