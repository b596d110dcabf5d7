package slogx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cairnhealth/cairn/pkg/idx"
)

// HTTPMiddleware attaches a request-scoped logger to the context and emits
// one access log line per request. A req_id is taken from X-Request-ID when
// the caller supplies one, minted otherwise, and echoed back in the response
// so clients can quote it in bug reports.
//
// Health probe traffic is logged at debug to keep the access log readable.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.New().String()
			}
			w.Header().Set("X-Request-ID", reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(rw, r.WithContext(WithContext(r.Context(), logger)))

			level := slog.LevelInfo
			if isProbe(r.URL.Path) {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

func isProbe(path string) bool {
	return strings.HasSuffix(path, "/livez") || strings.HasSuffix(path, "/readyz")
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
