// Package api serves the local status API of a running batch.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-render/internal/batch"
	"github.com/heimdex/heimdex-render/internal/ledger"
)

type Server struct {
	httpServer *http.Server
	ln         net.Listener
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	Store     ledger.Store
	Progress  *batch.Progress
	Cancel    func() // cancels the running batch; nil disables POST /cancel
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Rendered files can be large; no write deadline.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Listen binds the status port. Called before the batch starts so that a
// port conflict is reported up front instead of surfacing mid-run.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status api listen: %w", err)
	}
	s.ln = ln
	return nil
}

// Serve answers requests until ctx is done, then shuts down gracefully.
// It binds the port itself when Listen was not called.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting status API", "addr", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(s.ln)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down status API")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Close releases a listener that Serve never took over.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr is the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.httpServer.Addr
}
