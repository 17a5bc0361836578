package http

import (
	"net/http"

	"github.com/crewpay/warden/pkg/cryptox"
	"github.com/crewpay/warden/pkg/jwtx"
	"github.com/crewpay/warden/pkg/slogx"
)

// PublicKeyHandler serves GET /auth/public-key: the verification key in PKIX
// PEM form. Sibling services fetch and cache it to verify tokens locally.
func PublicKeyHandler(codec *jwtx.Codec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		pemBytes, err := cryptox.MarshalEd25519PublicKey(codec.PublicKey())
		if err != nil {
			log.Error("public key marshal failed", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/x-pem-file")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pemBytes)
	}
}
