package httpx

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"strings"

	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

// TokenExtractor pulls the raw wire token from the request and stores it in
// the context. The Authorization header is checked first, then the "token"
// query parameter. A request carrying neither is rejected before any handler
// logic runs.
func TokenExtractor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				writeBearerError(w, "missing token")
				return
			}

			ctx := context.WithValue(r.Context(), CtxKeyToken, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AppIDHeader names the issuing service of the presented token. A request
// carrying it asks to be verified against that issuer's key instead of the
// local one.
const AppIDHeader = "X-App-ID"

// KeyResolver returns the verification key for a peer issuer.
type KeyResolver func(ctx context.Context, issuer string) (ed25519.PublicKey, error)

// AuthnMiddleware extracts and verifies the wire token against the given
// public key, issuer and audience. Verified claims land in the context for
// downstream handlers; any failure is a generic 401.
func AuthnMiddleware(pub ed25519.PublicKey, issuer, audience string) Middleware {
	return AuthnWithPeers(pub, issuer, audience, nil)
}

// AuthnWithPeers behaves like AuthnMiddleware but additionally accepts tokens
// minted by sibling issuers. When the request names another issuer via the
// AppIDHeader, the peer resolver supplies that issuer's verification key and
// the token is checked against it. A nil resolver means local tokens only.
func AuthnWithPeers(pub ed25519.PublicKey, issuer, audience string, peers KeyResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw := extractToken(r)
			if raw == "" {
				writeBearerError(w, "missing token")
				return
			}

			verifyKey, verifyIssuer := pub, issuer
			if appID := r.Header.Get(AppIDHeader); appID != "" && appID != issuer {
				if peers == nil {
					log.Warn("peer token presented without a key resolver", "app_id", appID)
					writeBearerError(w, "unknown issuer")
					return
				}
				peerKey, err := peers(ctx, appID)
				if err != nil {
					log.Warn("peer key resolution failed", "app_id", appID, "err", err)
					writeBearerError(w, "unknown issuer")
					return
				}
				verifyKey, verifyIssuer = peerKey, appID
			}

			claims, err := jwtx.Decode(raw, verifyKey, verifyIssuer, audience)
			if err != nil {
				log.Warn("token verification failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyToken, raw)
			ctx = context.WithValue(ctx, CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	}
	return r.URL.Query().Get("token")
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized")
}
