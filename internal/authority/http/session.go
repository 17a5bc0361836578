package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crewpay/warden/internal/authority/service"
	"github.com/crewpay/warden/pkg/httpx"
	"github.com/crewpay/warden/pkg/idx"
	"github.com/crewpay/warden/pkg/slogx"
)

// SessionHandler serves the session lifecycle endpoints.
type SessionHandler struct {
	Authority *service.AuthorityService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// HandleLogin serves POST /v1/session.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	pair, err := h.Authority.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}

// HandleRenew serves POST /v1/session/renew. The refresh token arrives via
// the extraction middleware.
func (h *SessionHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := httpx.TokenFromContext(ctx)

	pair, err := h.Authority.Renew(ctx, refresh)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		log.Error("session renew failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int(pair.ExpiresIn.Seconds()),
	})
}

// HandleRevoke serves DELETE /v1/session. The authn middleware has already
// verified the access token and injected its claims.
func (h *SessionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	principal, err := idx.Parse(claims.PrincipalID)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Authority.RevokeAll(ctx, principal); err != nil {
		log.Error("session revoke failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
