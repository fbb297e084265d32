// Package server serves the Prometheus metrics endpoint and a health check
// over HTTP or HTTPS.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ey-asu-rnd/streamguard/internal/logging"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "127.0.0.1:9464").
	Listen string

	// TLS configuration (optional).
	TLSCertFile string
	TLSKeyFile  string

	// Registry is gathered on every scrape (required).
	Registry *prometheus.Registry

	// Healthy reports readiness for /healthz. Nil always reports healthy.
	Healthy func() bool
}

// =============================================================================
// Server
// =============================================================================

// Server exposes /metrics and /healthz.
type Server struct {
	cfg      *Config
	log      *slog.Logger
	http     *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
	ready   chan struct{}
}

// New creates a new server.
func New(cfg *Config) *Server {
	s := &Server{
		cfg:   cfg,
		log:   logging.Component("server"),
		ready: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{
		ErrorLog: errorLogger{s.log},
	}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.mu.Unlock()

	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln
	close(s.ready)

	s.log.Info("metrics endpoint listening",
		"addr", ln.Addr().String(),
		"tls", s.cfg.TLSCertFile != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.log.Info("shutdown complete")
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln, err := tls.Listen("tcp", s.cfg.Listen, tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("TLS listen: %w", err)
		}
		return ln, nil
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Healthy != nil && !s.cfg.Healthy() {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// errorLogger routes promhttp errors to the component logger.
type errorLogger struct{ log *slog.Logger }

func (l errorLogger) Println(v ...any) {
	l.log.Error("metrics handler", "error", fmt.Sprint(v...))
}
