package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// TokenHandler handles POST /v1/auth/token/refresh and POST /v1/auth/logout.
type TokenHandler struct {
	SessionService *service.SessionService
}

func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse refresh request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.SessionService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(pair.ExpiresIn),
	})
}

func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.LogoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse logout request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SessionService.Logout(ctx, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.AcceptedResponse{Accepted: true})
}
