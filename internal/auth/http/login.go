package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// LoginHandler handles POST /v1/auth/login.
type LoginHandler struct {
	AuthService *service.AuthService
}

func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse login request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Identifier == "" || req.Password == "" || req.CaptchaSessionID == "" || req.CaptchaInput == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.AuthService.Login(ctx, service.LoginInput{
		Identifier:       req.Identifier,
		Password:         req.Password,
		CaptchaSessionID: req.CaptchaSessionID,
		CaptchaInput:     req.CaptchaInput,
		RememberMe:       req.RememberMe,
		Device:           req.Device,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.Challenge != nil {
		delivery := authapi.DeliveryQueued
		if !result.Challenge.Delivered {
			delivery = authapi.DeliveryUnconfirmed
		}
		httpx.WriteJSON(w, http.StatusAccepted, authapi.TwoFactorRequiredResponse{
			Status:       authapi.StatusTwoFactorRequired,
			PreAuthToken: result.Challenge.PreAuthToken,
			Methods:      result.Challenge.Methods,
			Delivery:     delivery,
		})
		return
	}

	writeTokenResponse(w, result)
}

// writeTokenResponse renders a completed login, 2FA exchange, or refresh.
func writeTokenResponse(w http.ResponseWriter, result *service.LoginResult) {
	httpx.WriteJSON(w, http.StatusOK, authapi.TokenResponse{
		AccessToken:  result.Pair.AccessToken,
		RefreshToken: result.Pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(result.Pair.ExpiresIn),
		Warnings:     result.Warnings,
	})
}
