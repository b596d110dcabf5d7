package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// TwoFactorSetupHandler handles the authenticated second-factor management
// endpoints under /v1/auth/2fa.
type TwoFactorSetupHandler struct {
	SetupService *service.SetupService
}

// HandleEnable handles POST /v1/auth/2fa/enable. Sends a confirmation code
// to the account's email.
func (h *TwoFactorSetupHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authapi.ErrInvalidCredentials.WriteError(w)
		return
	}

	queued, err := h.SetupService.StartEmailTwoFactor(ctx, userID)
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

// HandleConfirm handles POST /v1/auth/2fa/confirm.
func (h *TwoFactorSetupHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authapi.ErrInvalidCredentials.WriteError(w)
		return
	}

	var req authapi.TwoFactorCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse 2fa confirm request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Code == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SetupService.ConfirmEmailTwoFactor(ctx, userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.AcceptedResponse{Accepted: true})
}

// HandleDisable handles POST /v1/auth/2fa/disable.
func (h *TwoFactorSetupHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authapi.ErrInvalidCredentials.WriteError(w)
		return
	}

	var req authapi.TwoFactorDisableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse 2fa disable request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Password == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SetupService.DisableTwoFactor(ctx, userID, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.AcceptedResponse{Accepted: true})
}

// HandleTOTPEnroll handles POST /v1/auth/2fa/totp/enroll.
func (h *TwoFactorSetupHandler) HandleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authapi.ErrInvalidCredentials.WriteError(w)
		return
	}

	enrollment, err := h.SetupService.EnrollTOTP(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// The secret is shown exactly once.
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authapi.TOTPEnrollResponse{
		Secret: enrollment.Secret,
		URL:    enrollment.URL,
	})
}

// HandleTOTPConfirm handles POST /v1/auth/2fa/totp/confirm.
func (h *TwoFactorSetupHandler) HandleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authapi.ErrInvalidCredentials.WriteError(w)
		return
	}

	var req authapi.TwoFactorCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse totp confirm request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Code == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SetupService.ConfirmTOTP(ctx, userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.AcceptedResponse{Accepted: true})
}
