package http

import (
	"net/http"

	"github.com/cairnhealth/cairn/internal/auth/service"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
	"github.com/cairnhealth/cairn/pkg/slogx"
)

// CaptchaHandler handles GET /v1/auth/captcha.
//
// The code travels in the response body rather than an image; rendering is
// the frontend's concern and the server-side guarantees (single use, expiry)
// are what matter here.
type CaptchaHandler struct {
	CaptchaService *service.CaptchaService
}

func (h *CaptchaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	c, err := h.CaptchaService.NewChallenge(ctx)
	if err != nil {
		log.Error("failed to mint captcha challenge", "err", err)
		authapi.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authapi.CaptchaResponse{
		CaptchaSessionID: c.SessionID,
		CaptchaCode:      c.Code,
	})
}
