// Package ingest is responsible for running the importer service in the background.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Service runs the event server, which triggers the imports, alongside the metrics server.
type Service struct {
	eventServer   Server
	metricsServer Server

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context lets the servers finish the events in flight.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	maxDegradedDuration time.Duration

	mu      sync.Mutex
	running chan struct{} // Closed when the service is not running.
}

// Server is an interface that defines the methods of the servers run by the service.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

type options struct {
	maxDegradedDuration time.Duration
}

// Option is a function which tweaks the creation of the Service.
type Option func(*options)

var (
	// errServiceClosed is returned when the service is already closed.
	errServiceClosed = errors.New("service closed")

	// ErrTeardownTimeout is returned when the service takes too long to shut down.
	// A force Quit may be required to cleanup the service.
	ErrTeardownTimeout = errors.New("service teardown timed out")
)

// New creates a new importer service running the provided servers.
func New(ctx context.Context, eventServer, metricsServer Server, args ...Option) *Service {
	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	opts := options{
		maxDegradedDuration: 2 * time.Minute,
	}
	for _, arg := range args {
		arg(&opts)
	}

	running := make(chan struct{})
	close(running) // Close immediately to avoid blocking on the channel.
	return &Service{
		eventServer:   eventServer,
		metricsServer: metricsServer,

		ctx:            ctx,
		cancel:         cancel,
		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,

		maxDegradedDuration: opts.maxDegradedDuration,

		running: running,
	}
}

// Run starts the importer service.
//
// Returns once both servers have stopped, or after an extended time being in a degraded state.
func (s *Service) Run() error {
	slog.Info("Importer service started")

	s.mu.Lock()
	select {
	case <-s.gracefulCtx.Done():
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", errServiceClosed, s.gracefulCtx.Err())
	default:
	}
	running := make(chan struct{})
	s.running = running
	s.mu.Unlock()

	defer close(running)
	defer s.cancel() // Ensure we cancel the context when done, regardless of result.

	done := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { done <- s.runServer("event", s.eventServer); wg.Done() }()
	go func() { done <- s.runServer("metrics", s.metricsServer); wg.Done() }()
	go func() { wg.Wait(); close(done) }()

	// Ensure we don't get stuck in a degraded state if one of the servers fails.
	err := <-done
	slog.Info("Waiting for importer servers to finish")

	select {
	case <-time.After(s.maxDegradedDuration):
		slog.Warn("Importer service teardown timed out")
		err = errors.Join(err, ErrTeardownTimeout)
	case secondDone := <-done:
		err = errors.Join(err, secondDone)
	}

	return err
}

func (s *Service) runServer(name string, srv Server) error {
	slog.Info("Starting server", "name", name)
	defer s.gracefulCancel() // Request stop of the other server if this one stops.

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-s.gracefulCtx.Done():
	case err := <-errCh:
		// No need to shutdown or close, just propagate the error.
		if err != nil {
			slog.Error("Server encountered error", "name", name, "err", err)
			return fmt.Errorf("%s server error: %v", name, err)
		}
		return nil
	}

	// gracefulCtx is done whenever ctx is, so check for the forced stop first.
	if s.ctx.Err() != nil {
		slog.Info("Closing server", "name", name, "reason", s.ctx.Err())
		srv.Close()
		return nil
	}

	slog.Info("Graceful shutdown initiated", "name", name)
	if err := srv.Shutdown(s.ctx); err != nil {
		slog.Error("Server graceful shutdown encountered error", "name", name, "err", err)
		return fmt.Errorf("%s server shutdown error: %v", name, err)
	}
	slog.Info("Server shut down gracefully", "name", name)
	return nil
}

// Quit stops the importer service.
// Blocks until the service has finished running.
func (s *Service) Quit(force bool) {
	slog.Info("Stopping importer service", "force", force)

	if force {
		s.cancel()
		s.eventServer.Close()
		s.metricsServer.Close()
	} else {
		s.gracefulCancel()
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	<-running
}
