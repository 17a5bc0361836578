package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crewpay/warden/internal/authority/service"
	"github.com/crewpay/warden/pkg/httpx"
	"github.com/crewpay/warden/pkg/slogx"
)

// ResetHandler serves the chained password-reset endpoints.
type ResetHandler struct {
	Authority *service.AuthorityService
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmResponse struct {
	ChangeToken string `json:"change_token"`
}

type resetExecuteRequest struct {
	NewPassword string `json:"new_password"`
}

// HandleRequest serves POST /v1/password-reset/request. The response is 202
// whether or not the email is known; nothing here may act as an oracle for
// account existence.
func (h *ResetHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := h.Authority.RequestPasswordReset(ctx, req.Email); err != nil {
		log.Error("password reset request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleConfirm serves POST /v1/password-reset/confirm. Redeeming the mailed
// lost-password token yields the change-password token for the final step.
func (h *ResetHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	lost := httpx.TokenFromContext(ctx)

	change, err := h.Authority.ConfirmResetRedirect(ctx, lost)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		log.Error("password reset confirm failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resetConfirmResponse{ChangeToken: change})
}

// HandleExecute serves POST /v1/password-reset/execute.
func (h *ResetHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req resetExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	change := httpx.TokenFromContext(ctx)

	err := h.Authority.ExecutePasswordChange(ctx, change, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			httpx.WriteError(w, http.StatusBadRequest, "weak_password")
		case errors.Is(err, service.ErrUnauthorized):
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		default:
			log.Error("password change failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
