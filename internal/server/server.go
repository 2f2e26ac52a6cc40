// Package server exposes the betting engine over HTTP: public round, stake,
// claim, and proposition routes plus an API-key-guarded admin surface and a
// WebSocket event feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsworks/parimutuel/internal/server/handler"
	"github.com/oddsworks/parimutuel/internal/server/middleware"
	"github.com/oddsworks/parimutuel/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKey guards the admin routes; plaintext or bcrypt hash. Empty
	// disables authentication.
	APIKey string

	// RateLimit requests per RateWindow per client IP; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Rounds   *handler.RoundHandler
	Stakes   *handler.StakeHandler
	Accounts *handler.AccountHandler
	Props    *handler.PropHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the betting engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (rate limiting, logging, CORS) wired around it.
// limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter middleware.Limiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Engine status and configuration.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/params", handlers.Status.GetParams)
	mux.HandleFunc("GET /api/assets", handlers.Status.GetAssets)

	// Round history and lifecycle.
	mux.HandleFunc("GET /api/rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("GET /api/rounds/{id}", handlers.Rounds.GetRound)
	mux.HandleFunc("GET /api/rounds/{id}/positions", handlers.Rounds.GetRoundPositions)
	mux.HandleFunc("GET /api/rounds/{id}/claims", handlers.Rounds.GetRoundClaims)
	mux.HandleFunc("POST /api/rounds/advance", handlers.Rounds.Advance)

	// Stakes and claims on the round book.
	mux.HandleFunc("POST /api/stakes", handlers.Stakes.PlaceStake)
	mux.HandleFunc("POST /api/claims", handlers.Stakes.Claim)

	// Per-account reads.
	mux.HandleFunc("GET /api/accounts/{address}/positions", handlers.Accounts.GetPositions)
	mux.HandleFunc("GET /api/accounts/{address}/positions/current", handlers.Accounts.GetCurrentPosition)
	mux.HandleFunc("GET /api/accounts/{address}/rewards", handlers.Accounts.GetRewards)
	mux.HandleFunc("GET /api/accounts/{address}/claims", handlers.Accounts.GetClaims)
	mux.HandleFunc("GET /api/accounts/{address}/spent", handlers.Accounts.GetSpent)
	mux.HandleFunc("GET /api/accounts/{address}/prop-positions", handlers.Accounts.GetPropPositions)
	mux.HandleFunc("GET /api/accounts/{address}/prop-claims", handlers.Accounts.GetPropClaims)

	// Propositions book.
	mux.HandleFunc("GET /api/props", handlers.Props.ListProps)
	mux.HandleFunc("GET /api/props/{id}", handlers.Props.GetProp)
	mux.HandleFunc("GET /api/props/{id}/positions", handlers.Props.GetPropPositions)
	mux.HandleFunc("POST /api/props/stakes", handlers.Props.PlaceStake)
	mux.HandleFunc("POST /api/props/claims", handlers.Props.Claim)

	// Admin surface: engine governance, proposition management, outbox, and
	// archival. Wrapped in auth individually so the public routes stay open.
	authed := middleware.Auth(cfg.APIKey)
	admin := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.Handle("POST /api/props", admin(handlers.Props.CreateProp))
	mux.Handle("PUT /api/props/{id}", admin(handlers.Props.ModifyProp))
	mux.Handle("POST /api/props/{id}/complete", admin(handlers.Props.CompleteProp))
	mux.Handle("POST /api/props/{id}/cancel", admin(handlers.Props.CancelProp))

	mux.Handle("PUT /api/admin/params", admin(handlers.Admin.UpdateParams))
	mux.Handle("POST /api/admin/halt", admin(handlers.Admin.Halt))
	mux.Handle("POST /api/admin/resume", admin(handlers.Admin.Resume))
	mux.Handle("GET /api/admin/admins", admin(handlers.Admin.ListAdmins))
	mux.Handle("POST /api/admin/admins", admin(handlers.Admin.AddAdmin))
	mux.Handle("POST /api/admin/admins/remove", admin(handlers.Admin.RemoveAdmin))
	mux.Handle("PUT /api/admin/assets", admin(handlers.Admin.SetAssets))
	mux.Handle("POST /api/admin/feeds", admin(handlers.Admin.RegisterFeed))
	mux.Handle("POST /api/admin/rounds/{id}/cancel", admin(handlers.Admin.CancelRound))
	mux.Handle("GET /api/admin/transfers", admin(handlers.Admin.ListTransfers))
	mux.Handle("POST /api/admin/transfers/{id}/executed", admin(handlers.Admin.MarkTransferExecuted))
	mux.Handle("POST /api/admin/archive", admin(handlers.Admin.Archive))
	mux.Handle("GET /api/admin/archives", admin(handlers.Admin.ListArchives))

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /api/ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
