package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// RegisterHandler handles POST /v1/auth/register.
type RegisterHandler struct {
	UserService *service.UserService
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authapi.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Warn("failed to parse register request", "err", err)
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		authapi.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.UserService.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":  u.ID,
		"username": u.Username,
	})
}
