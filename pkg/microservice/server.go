// Package microservice serves the health and metrics endpoints of a
// long-running stream.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/rs/zerolog"
)

// ReadinessFunc reports whether the stream is ready and a short status.
type ReadinessFunc func() (bool, string)

// BaseServer serves /healthz, /readyz and, with a registry, /metrics.
type BaseServer struct {
	Logger     zerolog.Logger
	HTTPPort   string
	httpServer *http.Server
	mux        *http.ServeMux
	actualAddr string
	readiness  ReadinessFunc
	mu         sync.RWMutex
}

// NewBaseServer creates a server listening on httpPort (":0" picks a port).
// reg may be nil.
func NewBaseServer(logger zerolog.Logger, httpPort string, reg *metrics.Registry) *BaseServer {
	s := &BaseServer{
		Logger:   logger.With().Str("component", "BaseServer").Logger(),
		HTTPPort: httpPort,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/healthz", HealthzHandler)
	s.mux.HandleFunc("/readyz", s.readyzHandler)
	if reg != nil {
		s.mux.Handle("/metrics", reg.Handler())
	}
	s.httpServer = &http.Server{
		Addr:    httpPort,
		Handler: s.mux,
	}
	return s
}

// SetReadiness installs the check behind /readyz. Without one the server
// reports ready.
func (s *BaseServer) SetReadiness(fn ReadinessFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = fn
}

// Start listens and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.Logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown stops the server within ctx's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.Logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port actually listened on, as ":<port>".
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.HTTPPort
	}
	return ":" + port
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

func (s *BaseServer) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	fn := s.readiness
	s.mu.RUnlock()

	ready, detail := true, "ready"
	if fn != nil {
		ready, detail = fn()
	}
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write([]byte(detail))
}

// HealthzHandler responds to liveness probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
