package httpx_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewpay/warden/pkg/httpx"
	"github.com/crewpay/warden/pkg/jwtx"
)

func TestTokenExtractor(t *testing.T) {
	var seen string
	handler := httpx.TokenExtractor()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpx.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer abc123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "abc123", seen)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?token=xyz789", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "xyz789", seen)
	})

	t.Run("header wins over query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?token=fromquery", nil)
		req.Header.Set("Authorization", "Bearer fromheader")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, "fromheader", seen)
	})

	t.Run("missing token rejected before handler", func(t *testing.T) {
		called := false
		h := httpx.TokenExtractor()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.False(t, called)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})
}

func TestAuthnMiddleware(t *testing.T) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	codec, err := jwtx.NewCodec("warden", key)
	require.NoError(t, err)

	payload := jwtx.Payload{PrincipalID: "p-1", Email: "a@b.c", Role: "client_individual"}
	token, _, err := codec.Issue(payload, "api", time.Minute)
	require.NoError(t, err)

	newHandler := func(got *jwtx.Claims) http.Handler {
		return httpx.AuthnMiddleware(pub, "warden", "api")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c, ok := httpx.ClaimsFromContext(r.Context()); ok {
					*got = c
				}
				w.WriteHeader(http.StatusOK)
			}))
	}

	t.Run("valid token passes with claims in context", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		newHandler(&got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "p-1", got.PrincipalID)
	})

	t.Run("wrong audience rejected", func(t *testing.T) {
		sessionToken, _, err := codec.Issue(payload, "session", time.Minute)
		require.NoError(t, err)

		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sessionToken)
		rec := httptest.NewRecorder()
		newHandler(&got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer nonsense")
		rec := httptest.NewRecorder()
		newHandler(&got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthnWithPeers(t *testing.T) {
	localPub, localKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	localCodec, err := jwtx.NewCodec("warden", localKey)
	require.NoError(t, err)

	peerPub, peerKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	peerCodec, err := jwtx.NewCodec("people-svc", peerKey)
	require.NoError(t, err)

	payload := jwtx.Payload{PrincipalID: "p-1", Role: "client_individual"}
	localToken, _, err := localCodec.Issue(payload, "api", time.Minute)
	require.NoError(t, err)
	peerToken, _, err := peerCodec.Issue(payload, "api", time.Minute)
	require.NoError(t, err)

	resolver := func(ctx context.Context, issuer string) (ed25519.PublicKey, error) {
		if issuer != "people-svc" {
			return nil, errors.New("no such issuer")
		}
		return peerPub, nil
	}

	newHandler := func(peers httpx.KeyResolver, got *jwtx.Claims) http.Handler {
		return httpx.AuthnWithPeers(localPub, "warden", "api", peers)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c, ok := httpx.ClaimsFromContext(r.Context()); ok {
					*got = c
				}
				w.WriteHeader(http.StatusOK)
			}))
	}

	t.Run("local token passes without app id header", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+localToken)
		rec := httptest.NewRecorder()
		newHandler(resolver, &got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "warden", got.Issuer)
	})

	t.Run("peer token verified via resolver", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+peerToken)
		req.Header.Set(httpx.AppIDHeader, "people-svc")
		rec := httptest.NewRecorder()
		newHandler(resolver, &got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "people-svc", got.Issuer)
		require.Equal(t, "p-1", got.PrincipalID)
	})

	t.Run("peer token rejected without resolver", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+peerToken)
		req.Header.Set(httpx.AppIDHeader, "people-svc")
		rec := httptest.NewRecorder()
		newHandler(nil, &got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown issuer rejected", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+peerToken)
		req.Header.Set(httpx.AppIDHeader, "rogue-svc")
		rec := httptest.NewRecorder()
		newHandler(resolver, &got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("peer token cannot impersonate the local issuer", func(t *testing.T) {
		var got jwtx.Claims
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.Header.Set("Authorization", "Bearer "+peerToken)
		req.Header.Set(httpx.AppIDHeader, "warden")
		rec := httptest.NewRecorder()
		newHandler(resolver, &got).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
