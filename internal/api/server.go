package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/agents"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/internal/market"
	"github.com/twquant/twse-agents/pkg/logger"
)

// Server is the public HTTP and WebSocket surface
type Server struct {
	httpServer *http.Server
	manager    *agents.Manager
	repo       *agents.Repository
	calendar   *market.Calendar
	gateway    *market.Gateway
	bus        *events.Bus
}

// NewServer wires routes over the manager and supporting services
func NewServer(cfg *config.ServerConfig, manager *agents.Manager, repo *agents.Repository, calendar *market.Calendar, gateway *market.Gateway, bus *events.Bus) *Server {
	s := &Server{
		manager:  manager,
		repo:     repo,
		calendar: calendar,
		gateway:  gateway,
		bus:      bus,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Put("/", s.handleUpdateAgent)
			r.Delete("/", s.handleDeleteAgent)
			r.Post("/start", s.handleStartSession)
			r.Post("/stop", s.handleStopSession)
			r.Put("/mode", s.handleSetMode)
			r.Get("/portfolio", s.handleGetPortfolio)
			r.Get("/trades", s.handleListTrades)
			r.Get("/strategies", s.handleListStrategies)
			r.Get("/sessions/{session_id}", s.handleGetSession)
		})
	})
	r.Get("/market/status", s.handleMarketStatus)
	r.Get("/market/stats", s.handleMarketStats)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start blocks serving requests until Stop
func (s *Server) Start() error {
	logger.Info("api server starting", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping api server")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
