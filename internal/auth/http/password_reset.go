package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// PasswordResetHandler handles POST /v1/auth/password-reset/initiate and
// POST /v1/auth/password-reset/complete.
type PasswordResetHandler struct {
	ResetService *service.ResetService
}

func (h *PasswordResetHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.PasswordResetInitiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse reset initiate request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Identifier == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	queued, err := h.ResetService.Initiate(ctx, req.Identifier)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Unknown identifiers report the same queued delivery as known ones, so
	// the response never confirms whether an account exists. Only a delivery
	// queue overflow downgrades to unconfirmed.
	delivery := authapi.DeliveryQueued
	if !queued {
		delivery = authapi.DeliveryUnconfirmed
	}
	httpx.WriteJSON(w, http.StatusAccepted, authapi.AcceptedResponse{
		Accepted: true,
		Delivery: delivery,
	})
}

func (h *PasswordResetHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.PasswordResetCompleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse reset complete request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Identifier == "" || req.OTPCode == "" || req.NewPassword == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.ResetService.Complete(ctx, req.Identifier, req.OTPCode, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.AcceptedResponse{Accepted: true})
}
