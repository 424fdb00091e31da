// Package api wires the chi router exposing spec.md §6's external
// interfaces, grounded on the teacher's internal/api/server.go.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/api/handlers"
	"github.com/bikeshrana/tradingd/internal/audit"
	"github.com/bikeshrana/tradingd/internal/auth"
	"github.com/bikeshrana/tradingd/internal/config"
	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/internal/core/loop"
	"github.com/bikeshrana/tradingd/internal/core/settlement"
	"github.com/bikeshrana/tradingd/internal/metrics"
	"github.com/bikeshrana/tradingd/internal/store"
	"github.com/bikeshrana/tradingd/internal/tickcache"
)

// Server wraps the HTTP server exposing order submission/cancellation,
// portfolio queries and tick lookup.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	logger    zerolog.Logger
	wsHandler *handlers.WebSocketHandler
}

// Deps bundles every component server routes call into.
type Deps struct {
	Loop     *loop.Loop
	Settle   *settlement.Settlement
	Store    *store.Store
	Cache    tickcache.Cache
	Audit    *audit.Logger
	JWT      *auth.JWTService
	Metrics  *metrics.TradingMetrics
	EventBus *events.EventBus

	// StreamTickInterval sets how often the WebSocket handler polls the
	// Tick Cache for a broadcast round; zero selects a 500ms default.
	StreamTickInterval time.Duration
}

// WebSocketHandler exposes the handler so callers (main) can start its
// event listener goroutine alongside the server.
func (s *Server) WebSocketHandler() *handlers.WebSocketHandler {
	return s.wsHandler
}

// NewServer builds the router and wraps it in an *http.Server.
func NewServer(cfg *config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.HTTPMetricsMiddleware(deps.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Store, logger)
	authHandler := handlers.NewAuthHandler(deps.JWT, logger)
	ordersHandler := handlers.NewOrdersHandler(deps.Loop, deps.Store, deps.Audit, logger)
	portfolioHandler := handlers.NewPortfolioHandler(deps.Settle, deps.Store, logger)
	ticksHandler := handlers.NewTicksHandler(deps.Cache, logger)
	performanceHandler := handlers.NewPerformanceHandler(deps.Loop, deps.Cache, logger)

	streamInterval := deps.StreamTickInterval
	if streamInterval <= 0 {
		streamInterval = 500 * time.Millisecond
	}
	wsHandler := handlers.NewWebSocketHandler(logger, deps.EventBus, deps.Cache, streamInterval)

	r.Get("/health", healthHandler.Handle)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.IssueToken)
		r.Post("/refresh", authHandler.Refresh)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ticks/{symbol}", ticksHandler.GetTick)
		r.Get("/market-data", ticksHandler.ListTicks)
		r.Get("/performance", performanceHandler.Handle)
		r.Get("/stream", wsHandler.HandleConnection)

		r.Group(func(r chi.Router) {
			r.Use(handlers.AuthMiddleware(deps.JWT))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordersHandler.CreateOrder)
				r.Get("/{orderId}", ordersHandler.GetOrder)
				r.Delete("/{orderId}", ordersHandler.CancelOrder)
				r.Get("/{orderId}/executions", ordersHandler.Executions)
			})

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/account/{accountId}", portfolioHandler.GetAccount)
				r.Get("/positions", portfolioHandler.GetPositions)
				r.Get("/positions/{symbol}", portfolioHandler.GetPosition)
			})
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{router: r, server: httpServer, logger: logger, wsHandler: wsHandler}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// LoggingMiddleware logs each HTTP request via zerolog.
func LoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
