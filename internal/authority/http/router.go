package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/crewpay/warden/internal/authority/domain"
	"github.com/crewpay/warden/internal/authority/service"
	"github.com/crewpay/warden/internal/authority/store"
	"github.com/crewpay/warden/pkg/httpx"
	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	kv        store.KV
	Authority *service.AuthorityService

	// PeerKeys resolves sibling issuers' verification keys so their tokens
	// are accepted on authenticated routes. Nil disables peer tokens.
	PeerKeys httpx.KeyResolver
}

func NewRouter(
	codec *jwtx.Codec,
	buildVersion string,
	kv store.KV,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		kv:           kv,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerPasswordReset()
	r.registerPublicKey()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSessions() {
	h := &SessionHandler{Authority: r.Authority}

	// POST /v1/session - strict rate limit (credential attempts)
	r.Mux.Handle("POST /v1/session",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/session/renew - refresh token arrives as bearer or query param
	r.Mux.Handle("POST /v1/session/renew",
		httpx.Chain(http.HandlerFunc(h.HandleRenew),
			httpx.TokenExtractor(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// DELETE /v1/session - requires a verified access token, issued locally
	// or by a sibling service named via the X-App-ID header
	r.Mux.Handle("DELETE /v1/session",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.AuthnWithPeers(r.codec.PublicKey(), r.codec.Issuer(), domain.AudAccess.Name(), r.PeerKeys),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPasswordReset() {
	h := &ResetHandler{Authority: r.Authority}

	// POST /v1/password-reset/request - strict limit (enumeration attempts)
	r.Mux.Handle("POST /v1/password-reset/request",
		httpx.Chain(http.HandlerFunc(h.HandleRequest),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/password-reset/confirm - lost-password token as bearer or query
	r.Mux.Handle("POST /v1/password-reset/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.TokenExtractor(),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/password-reset/execute - change-password token plus new secret
	r.Mux.Handle("POST /v1/password-reset/execute",
		httpx.Chain(http.HandlerFunc(h.HandleExecute),
			httpx.TokenExtractor(),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerPublicKey() {
	// GET /auth/public-key - served to sibling services and their key caches
	r.Mux.Handle("GET /auth/public-key",
		httpx.Chain(PublicKeyHandler(r.codec),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.kv),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
