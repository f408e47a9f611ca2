package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server exposes the operational endpoints (health probes and the
// Prometheus scrape target) on a port separate from the skill webhook.
type Server struct {
	httpServer *http.Server
	checker    *HealthChecker
	port       int
}

// NewServer creates an operational server around the given checker.
func NewServer(port int, checker *HealthChecker) *Server {
	return &Server{port: port, checker: checker}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.checker.Handler())
	mux.HandleFunc("/health/live", s.checker.LivenessHandler())
	mux.HandleFunc("/health/ready", s.checker.ReadinessHandler())
	mux.Handle("/metrics", MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
