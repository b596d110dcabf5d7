package http

import (
	"net/http"
	"time"

	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
)

// LivezHandler is the liveness probe: always 200 while the process runs.
func LivezHandler(version string, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authapi.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
