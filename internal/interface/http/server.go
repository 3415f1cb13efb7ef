// Package http implements the REST API for Comportamento Hub: occurrence
// lifecycle operations, score queries and health endpoints.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fato-hub/comportamento-hub/internal/application/command"
	"github.com/fato-hub/comportamento-hub/internal/application/query"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/service"
	"github.com/fato-hub/comportamento-hub/pkg/logger"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// EnableCORS - enable CORS headers.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all handlers and services the API exposes.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	CreateOccurrence      *command.CreateOccurrenceHandler
	FlagOccurrence        *command.FlagOccurrenceHandler
	ConsolidateOccurrence *command.ConsolidateOccurrenceHandler
	OccurrenceLifecycle   *command.RemoveOccurrenceHandler
	UpdateTicket          *command.UpdateTicketHandler

	// Query Handlers (CQRS Read Side)
	GetOccurrence    *query.GetOccurrenceHandler
	GetStudentScore  *query.GetStudentScoreHandler
	GetStudentReport *query.GetStudentReportHandler
	ListOccurrences  *query.ListOccurrencesHandler
	ListStudents     *query.ListStudentsHandler

	// Auth guards the write endpoints (nil disables authentication).
	Auth *service.AuthService

	// Logger
	Logger *logger.Logger

	// HealthCheck pings the backing stores.
	HealthCheck func(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	log        *logger.Logger

	limiter *ipRateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates the server and wires routes and middleware.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		log:    deps.Logger,
	}
	if s.log == nil {
		s.log = logger.Default()
	}

	if config.RateLimitPerMinute > 0 {
		s.limiter = newIPRateLimiter(config.RateLimitPerMinute)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Occurrence lifecycle (write side, authenticated)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/occurrences", s.authenticated(s.handleCreateOccurrence))
	s.router.HandleFunc("POST /api/v1/occurrences/{id}/flag", s.authenticated(s.handleFlagOccurrence))
	s.router.HandleFunc("POST /api/v1/occurrences/{id}/consolidate", s.authenticated(s.handleConsolidateOccurrence))
	s.router.HandleFunc("POST /api/v1/occurrences/{id}/restore", s.authenticated(s.handleRestoreOccurrence))
	s.router.HandleFunc("PATCH /api/v1/occurrences/{id}/ticket", s.authenticated(s.handleUpdateTicket))
	s.router.HandleFunc("DELETE /api/v1/occurrences/{id}", s.authenticated(s.handleRemoveOccurrence))
	s.router.HandleFunc("DELETE /api/v1/occurrences/{id}/permanent", s.authenticated(s.handleEraseOccurrence))

	// ─────────────────────────────────────────────────────────────────────────
	// Read side
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/occurrences", s.handleListOccurrences)
	s.router.HandleFunc("GET /api/v1/occurrences/{id}", s.handleGetOccurrence)
	s.router.HandleFunc("GET /api/v1/students", s.handleListStudents)
	s.router.HandleFunc("GET /api/v1/students/{numero}/score", s.handleGetStudentScore)
	s.router.HandleFunc("GET /api/v1/students/{numero}/report", s.handleGetStudentReport)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router; the last wrap runs first.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := handler
	h = s.requestIDMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}
	if s.limiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return h
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.log.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
			logger.String("request_id", requestID(r.Context())),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", requestID(r.Context())),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticated guards write endpoints with HTTP basic auth against the
// operator store. With no AuthService configured the guard is a no-op
// (local development).
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Auth == nil {
			next(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="comportamento"`)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Credentials required")
			return
		}

		if _, err := s.deps.Auth.Authenticate(r.Context(), username, password); err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
			return
		}

		next(w, r)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// ipRateLimiter keeps one token bucket per client IP. Buckets idle for more
// than an hour are dropped on the next sweep.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipBucket
	limit    rate.Limit
	burst    int
	lastSwep time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*ipBucket),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		lastSwep: time.Now(),
	}
}

// Allow reports whether the request from ip fits its bucket.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSwep) > time.Hour {
		for k, b := range l.limiters {
			if now.Sub(b.lastSeen) > time.Hour {
				delete(l.limiters, k)
			}
		}
		l.lastSwep = now
	}

	b, ok := l.limiters[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the standard response envelope.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the error payload.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	response := JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: requestID(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(response)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	response := JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	}
	_ = json.NewEncoder(w).Encode(response)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
