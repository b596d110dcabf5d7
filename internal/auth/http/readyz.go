package http

import (
	"net/http"
	"time"

	"github.com/cairnhealth/cairn/internal/auth/store"
	"github.com/cairnhealth/cairn/pkg/authapi"
	"github.com/cairnhealth/cairn/pkg/httpx"
)

// ReadyzHandler is the readiness probe: 503 when the database is unreachable.
func ReadyzHandler(st store.Store, version string, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authapi.HealthChecks{Database: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, authapi.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
