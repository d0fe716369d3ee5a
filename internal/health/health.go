// Package health implements the TCP liveness responder. Platform health
// probes open a connection and expect a short reply; anything beyond that is
// out of scope here.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// response is what every probe connection receives.
const response = "OK\n"

// ServerConfig contains configuration for the health server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// WriteTimeout bounds the reply write per connection.
	WriteTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8000",
		WriteTimeout: 2 * time.Second,
	}
}

// Server answers TCP liveness probes.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	listener net.Listener
}

// NewServer creates a health Server.
func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Second
	}

	return &Server{
		config: config,
		logger: config.Logger,
	}
}

// Addr returns the bound address, or "" before Run.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run listens and serves probes until ctx is cancelled. Each connection gets
// the reply and is closed immediately; a failing probe connection never takes
// the server down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("health: listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.logger.Info("health check server listening", "addr", ln.Addr().String())

	// Unblock Accept when ctx is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("health check server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("health check accept failed", "error", err)
			continue
		}

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := conn.Write([]byte(response)); err != nil {
		s.logger.Debug("health check write failed", "error", err)
	}
}
