package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

func testServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	deps.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return NewServer(cfg, deps)
}

func TestHealthReportsBackingStores(t *testing.T) {
	healthy := testServer(t, Dependencies{
		HealthCheck: func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	healthy.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy := testServer(t, Dependencies{
		HealthCheck: func(context.Context) error { return errors.New("postgres down") },
	})
	rec = httptest.NewRecorder()
	unhealthy.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoedAndGenerated(t *testing.T) {
	s := testServer(t, Dependencies{})

	req := httptest.NewRequest("GET", "/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/live", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	s := testServer(t, Dependencies{})

	req := httptest.NewRequest("OPTIONS", "/api/v1/occurrences", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	l := newIPRateLimiter(3)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// Independent buckets per IP.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestClientIPPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	assert.Equal(t, "192.168.1.5", clientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	assert.Equal(t, "198.51.100.7", clientIP(req))
}

func TestDomainErrorMapping(t *testing.T) {
	s := testServer(t, Dependencies{})

	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrOccurrenceNotFound, http.StatusNotFound},
		{shared.ErrStudentNotFound, http.StatusNotFound},
		{shared.ErrAlreadyConsolidated, http.StatusConflict},
		{shared.ErrInvalidTransition, http.StatusConflict},
		{shared.ErrOccurrenceNotRemoved, http.StatusConflict},
		{shared.ErrInvalidStudentNumber, http.StatusBadRequest},
		{shared.ErrInvalidKind, http.StatusBadRequest},
		{shared.ErrInvalidCredentials, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		s.writeDomainError(rec, req, tc.err)
		assert.Equal(t, tc.want, rec.Code, "error: %v", tc.err)
	}
}
