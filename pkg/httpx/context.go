package httpx

import (
	"context"

	"github.com/crewpay/warden/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyToken  ctxKey = "token"  // raw wire token as presented
	CtxKeyClaims ctxKey = "claims" // verified claims, set by AuthnMiddleware
)

// TokenFromContext returns the raw wire token extracted from the request, or
// "" if no extraction middleware ran.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyToken).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified claims placed by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
