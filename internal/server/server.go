// Package server exposes the Prometheus metrics and a health probe over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Addr string
	// Gatherer defaults to the global prometheus registry.
	Gatherer prometheus.Gatherer
	// Status adds fields to the health response.
	Status func() map[string]any
}

type Server struct {
	name     string
	config   Config
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

func New(name string, config Config, logger *slog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":9090"
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		name:   name,
		config: config,
		logger: logger.With("server", name),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start binds the listener synchronously so address errors surface here,
// then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server %s: failed to listen on %s: %w", s.name, s.config.Addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
		}
	}()

	s.logger.Info("Server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if s.config.Status != nil {
		for k, v := range s.config.Status() {
			body[k] = v
		}
	}
	body["status"] = "ok"
	body["name"] = s.name
	body["time"] = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write health response", "error", err)
	}
}
