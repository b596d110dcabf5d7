package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// TwoFactorHandler handles the in-login second factor endpoints:
// POST /v1/auth/login/2fa and POST /v1/auth/login/2fa/resend.
type TwoFactorHandler struct {
	AuthService *service.AuthService
}

func (h *TwoFactorHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.TwoFactorCompleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse 2fa completion request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.PreAuthToken == "" || req.Code == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	method := req.Method
	if method == "" {
		method = authapi.MethodEmail
	}

	result, err := h.AuthService.CompleteTwoFactor(ctx, req.PreAuthToken, method, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeTokenResponse(w, result)
}

func (h *TwoFactorHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.TwoFactorResendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse 2fa resend request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.PreAuthToken == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	queued, err := h.AuthService.ResendTwoFactor(ctx, req.PreAuthToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	delivery := authapi.DeliveryQueued
	if !queued {
		delivery = authapi.DeliveryUnconfirmed
	}
	httpx.WriteJSON(w, http.StatusAccepted, authapi.AcceptedResponse{
		Accepted: true,
		Delivery: delivery,
	})
}
