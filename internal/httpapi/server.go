// Copyright (c) 2025 Justin Cranford

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps the chi handler in an http.Server with graceful shutdown.
type Server struct {
	httpSrv *http.Server
	logger  *slog.Logger
}

// NewServer binds addr to rt's routes. Timeouts mirror the pack's other
// chi-based API servers: generous enough for a slow flow node, bounded
// enough to shed a stuck connection.
func NewServer(addr string, rt *Router, allowedOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      rt.Routes(allowedOrigins),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Run listens until ctx is cancelled, then drains in-flight requests for
// up to 10s before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
