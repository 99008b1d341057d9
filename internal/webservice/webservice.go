// Package webservice provides the HTTP server receiving trigger events and answering version requests.
package webservice

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/myselamat/selamat-importer/internal/webservice/handlers"
	"github.com/myselamat/selamat-importer/internal/webservice/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Server is the HTTP server of the importer.
type Server struct {
	httpServer *http.Server

	mu   sync.RWMutex
	addr net.Addr
}

// Config holds the configuration of the server.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
	MaxEventBytes  int

	ListenHost string
	ListenPort int
}

// New creates a server dispatching the events posted on /events to d.
// Request metrics are registered against reg.
func New(cfg Config, d handlers.Dispatcher, reg prometheus.Registerer) (*Server, error) {
	if cfg.MaxEventBytes <= 0 {
		return nil, fmt.Errorf("invalid maximum event size %d", cfg.MaxEventBytes)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("invalid request timeout %s", cfg.RequestTimeout)
	}

	mw := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("POST /events", mw.Monitor("events", metrics.HandlerApplyLabels(handlers.NewEvents(d, int64(cfg.MaxEventBytes)))))
	mux.Handle("GET /version", mw.Monitor("version", metrics.HandlerApplyLabels(http.HandlerFunc(handlers.VersionHandler))))

	return &Server{
		httpServer: &http.Server{
			Addr:           net.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.ListenPort)),
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			Handler:        http.TimeoutHandler(mux, cfg.RequestTimeout, ""),
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
	}, nil
}

// ListenAndServe listens on the configured address and serves until the server is shut down or closed.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	slog.Info("Starting server", "addr", listener.Addr())
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully stops the server, waiting for the events being handled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close stops the server immediately.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the address the server is listening on, or an empty string if it is not listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}
