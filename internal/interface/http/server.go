// Package http exposes the arena's REST surface: puzzle attempts, battle
// control, matchmaking entry, leaderboards, and session bookkeeping, plus the
// unauthenticated health and metrics endpoints. The WebSocket gateway mounts
// here but lives in the ws package.
package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codearena/arena-server/internal/application/command"
	"github.com/codearena/arena-server/internal/application/query"
	"github.com/codearena/arena-server/internal/interface/auth"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
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

	// EnableMetrics - serve Prometheus metrics on /metrics.
	EnableMetrics bool

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// JWTSecret - shared secret for bearer-token verification.
	JWTSecret string
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
		EnableMetrics:      true,
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

// Dependencies contains everything the HTTP handlers call into.
type Dependencies struct {
	// Command handlers (CQRS write side)
	RecordAttempt *command.RecordAttemptHandler
	PurchaseHint  *command.PurchaseHintHandler
	TrackSession  *command.TrackSessionHandler
	JoinQueue     *command.JoinQueueHandler
	CreateBattle  *command.CreateBattleHandler
	ReadyBattle   *command.ReadyBattleHandler
	Submit        *command.SubmitSolutionHandler
	ExitBattle    *command.ExitBattleHandler
	KickUnready   *command.KickUnreadyHandler
	Challenges    *command.ChallengeHandler

	// Query handlers (CQRS read side)
	Leaderboard  *query.LeaderboardHandler
	Progress     *query.ProgressHandler
	Stats        *query.StatsHandler
	Achievements *query.AchievementsHandler
	Battles      *query.BattleHandler

	// WS is the upgrade endpoint; mounted at GET /ws when set.
	WS http.Handler

	// Health probes. Ready fails when a probe fails.
	Probes []Probe

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Probe is one readiness dependency (database, redis).
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
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
	verifier   *auth.Verifier
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates the HTTP server with routes and middleware wired.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:   config,
		deps:     deps,
		router:   http.NewServeMux(),
		verifier: auth.NewVerifier(config.JWTSecret),
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
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

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints (no auth)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	if s.config.EnableMetrics {
		s.router.Handle("GET /metrics", promhttp.Handler())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// WebSocket upgrade (token checked inside the gateway)
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.WS != nil {
		s.router.Handle("GET /ws", s.deps.WS)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Puzzle
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/puzzle/attempt", s.authed(s.handleRecordAttempt))
	s.router.HandleFunc("GET /api/puzzle/progress/{levelId}", s.authed(s.handleGetProgress))
	s.router.HandleFunc("GET /api/puzzle/preferred-difficulty/{lessonId}", s.authed(s.handleGetPreferredDifficulty))
	s.router.HandleFunc("POST /api/puzzle/hint", s.authed(s.handlePurchaseHint))

	// ─────────────────────────────────────────────────────────────────────────
	// Battle & Matchmaking
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/battle/create", s.authed(s.handleCreateBattle))
	s.router.HandleFunc("POST /api/battle/matchmaking/queue", s.authed(s.handleJoinQueue))
	s.router.HandleFunc("GET /api/battle/active", s.authed(s.handleActiveBattles))
	s.router.HandleFunc("GET /api/battle/{id}", s.authed(s.handleGetBattle))
	s.router.HandleFunc("POST /api/battle/{id}/submit", s.authed(s.handleSubmit))
	s.router.HandleFunc("POST /api/battle/{id}/exit", s.authed(s.handleExitBattle))
	s.router.HandleFunc("POST /api/battle/{id}/ready", s.authed(s.handleReadyBattle))
	s.router.HandleFunc("POST /api/battle/{id}/kick-unready", s.authed(s.handleKickUnready))
	s.router.HandleFunc("POST /api/battle/challenge", s.authed(s.handleCreateChallenge))
	s.router.HandleFunc("GET /api/battle/challenges", s.authed(s.handlePendingChallenges))
	s.router.HandleFunc("POST /api/battle/challenges/{id}/respond", s.authed(s.handleRespondChallenge))

	// ─────────────────────────────────────────────────────────────────────────
	// Progression, Leaderboard & Session
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/leaderboard", s.authed(s.handleLeaderboard))
	s.router.HandleFunc("GET /api/achievements", s.authed(s.handleAchievements))
	s.router.HandleFunc("GET /api/stats/me", s.authed(s.handleMyStats))
	s.router.HandleFunc("POST /api/session/heartbeat", s.authed(s.handleHeartbeat))
	s.router.HandleFunc("POST /api/session/close", s.authed(s.handleCloseSession))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	// Applied in reverse order; the last wrap runs first.
	h := handler
	h = s.requestIDMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}
	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return h
}

// authed verifies the bearer token and stashes the identity in the context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Verify(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), identity)))
	}
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request and records the latency histogram.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		if s.deps.Metrics != nil {
			route := r.URL.Path
			if pattern := r.Pattern; pattern != "" {
				route = pattern
			}
			s.deps.Metrics.HTTPDuration.
				WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).
				Observe(duration.Seconds())
		}

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(duration),
			logger.String("ip", getClientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
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

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
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

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, time.Now())
	return true
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			var valid []time.Time
			for _, t := range requests {
				if t.After(windowStart) {
					valid = append(valid, t)
				}
			}
			if len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}
