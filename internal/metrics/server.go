// Package metrics exposes the process's Prometheus collectors (registered
// via promauto by the orchestrator, the provider registry's health table,
// and the journal) over HTTP, plus a liveness endpoint. It holds no counters of
// its own — every collector lives next to the component that emits it.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/marketcycle/orchestrator/internal/config"
)

// Reporter supplies the domain-specific detail /health exposes beyond a bare
// liveness stub: for each configured pair, how many providers are currently
// healthy for the CANDLES capability — the component every cycle needs
// first, per spec.md §4.2. This stands in for the teacher's DB/exchange/queue
// connectivity checks, which have no equivalent in this system (the core has
// no database and places live exchange connectivity behind the
// MarketDataProvider collaborator boundary); reporting provider-registry
// health is the nearest equivalent "are we actually able to do work" signal
// this orchestrator can give. *app.App satisfies this interface structurally
// via its own PairHealth method; cmd/orchestrator wires it in with
// SetReporter so internal/metrics never needs to import internal/app.
type Reporter interface {
	PairHealth() map[string]int
}

// Server provides HTTP server for Prometheus metrics
type Server struct {
	port     int
	server   *http.Server
	mux      *http.ServeMux
	log      zerolog.Logger
	reporter Reporter
}

// NewServer creates a new metrics server
func NewServer(port int, log zerolog.Logger) *Server {
	return &Server{
		port: port,
		log:  log.With().Str("component", "metrics_server").Logger(),
	}
}

// SetReporter wires the orchestrator-specific health reporter /health
// serves alongside the generic liveness fields. Must be called before
// Start; nil is safe and falls back to the generic payload.
func (s *Server) SetReporter(r Reporter) {
	s.reporter = r
}

// Start starts the metrics HTTP server
func (s *Server) Start() error {
	s.mux = http.NewServeMux()

	// Prometheus metrics endpoint
	s.mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint with detailed JSON response
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   config.Version,
		}
		if s.reporter != nil {
			health["pairs_healthy_candle_providers"] = s.reporter.PairHealth()
		}

		json.NewEncoder(w).Encode(health)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting metrics server")

	// Start in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down metrics server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	s.log.Info().Msg("Metrics server shutdown complete")
	return nil
}

// RegisterHandler registers a custom HTTP handler
func (s *Server) RegisterHandler(pattern string, handler http.HandlerFunc) {
	if s.mux != nil {
		s.mux.HandleFunc(pattern, handler)
	}
}
