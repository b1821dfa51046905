// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lanwarden/lanwarden/internal/logging"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Server runs the HTTP listener under supervision.
type Server struct {
	config  ServerConfig
	handler http.Handler
}

// NewServer creates the HTTP server.
func NewServer(config ServerConfig, handler http.Handler) *Server {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Server{
		config:  config,
		handler: handler,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
}

// Serve runs the server until the context is canceled, then shuts it
// down gracefully within the configured timeout. Designed for suture
// supervision. WriteTimeout stays unset so websocket connections are
// not severed mid-stream.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadTimeout:       s.config.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("component", "api").
			Str("addr", srv.Addr).
			Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
			return err
		}
		logging.Info().Str("component", "api").Msg("HTTP server stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: server failed: %w", err)
	}
}
