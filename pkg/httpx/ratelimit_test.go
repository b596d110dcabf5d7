package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
	h := Chain(okHandler(), RateLimitByIP(cfg))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}
}

func TestRateLimitBlocksOverBudget(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	h := Chain(okHandler(), RateLimitByIP(cfg))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitIsolatesKeys(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := Chain(okHandler(), RateLimitByIP(cfg))

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "10.0.0.3:1234"
	h.ServeHTTP(first, reqA)
	require.Equal(t, http.StatusOK, first.Code)

	blocked := httptest.NewRecorder()
	reqA2 := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA2.RemoteAddr = "10.0.0.3:1234"
	h.ServeHTTP(blocked, reqA2)
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)

	// A different IP has its own bucket.
	other := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "10.0.0.4:1234"
	h.ServeHTTP(other, reqB)
	require.Equal(t, http.StatusOK, other.Code)
}

func TestIPKeyExtractorPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.5")

	require.Equal(t, "203.0.113.7", IPKeyExtractor(req))
}

func TestCompositeKeyExtractorSkipsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.6:1234"

	key := CompositeKeyExtractor(":", UserIDKeyExtractor, IPKeyExtractor)(req)
	require.Equal(t, "10.0.0.6", key)
}
