package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/database"
	redisAdapter "github.com/twquant/twse-agents/internal/adapters/redis"
	"github.com/twquant/twse-agents/pkg/logger"
)

// Server serves liveness and readiness probes on a dedicated port
type Server struct {
	server    *http.Server
	db        *database.DB
	redis     *redisAdapter.Client // nil when redis is disabled
	ready     bool
	readyMu   sync.RWMutex
	startTime time.Time
}

// HealthStatus represents process health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus represents readiness to accept traffic
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewServer creates the probe server
func NewServer(port int, db *database.DB, redis *redisAdapter.Client) *Server {
	mux := http.NewServeMux()

	s := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		db:        db,
		redis:     redis,
		startTime: time.Now(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReadiness)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)

	return s
}

// Start blocks serving probes until Stop
func (s *Server) Start() error {
	logger.Info("health server starting", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the probe server down
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping health server")
	return s.server.Shutdown(ctx)
}

// SetReady flips the readiness flag once startup completes
func (s *Server) SetReady(ready bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready = ready

	if ready {
		logger.Info("service marked ready")
	} else {
		logger.Warn("service marked not ready")
	}
}

// handleHealth is the liveness probe; it answers 200 while the process
// is alive even if dependencies are down
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}

	if r.URL.Query().Get("verbose") == "true" {
		status.Checks = s.dependencyChecks()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// handleReadiness answers 200 only when startup is complete and every
// dependency is reachable
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	checks := s.dependencyChecks()
	for _, state := range checks {
		if state != "healthy" {
			ready = false
		}
	}

	status := ReadinessStatus{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) dependencyChecks() map[string]string {
	checks := make(map[string]string)

	if err := s.db.Health(); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	if s.redis != nil {
		if err := s.redis.Health(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	}
	return checks
}
