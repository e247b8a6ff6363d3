package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/history"
	"github.com/vovakirdan/roomchat/internal/history/sqlite"
	transporthttp "github.com/vovakirdan/roomchat/internal/transport/http"
)

// Server wires together the room hub, its history and the HTTP transport.
type Server struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	history         core.History
	log             *zerolog.Logger
}

// NewServer constructs the reference server with provided configuration.
func NewServer(cfg config.Server, logger *zerolog.Logger) (*Server, error) {
	hist, err := openHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}
	if cfg.HistoryPath != "" {
		logger.Info().Str("history_path", cfg.HistoryPath).Msg("history database initialized")
	}

	hub := core.NewHub(hist, cfg.HistoryLimit, logger)
	server := transporthttp.NewServer(hub, cfg, logger)

	return &Server{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		history:         hist,
		log:             logger,
	}, nil
}

func openHistory(cfg config.Server) (core.History, error) {
	if cfg.HistoryPath == "" {
		return history.NewMemory(cfg.HistoryLimit), nil
	}
	return sqlite.New(cfg.HistoryPath)
}

// Hub exposes the room hub, e.g. to kick users.
func (s *Server) Hub() *core.Hub {
	return s.hub
}

// Handler returns the HTTP handler serving /health and /ws.
func (s *Server) Handler() stdhttp.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("starting room server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		s.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.log.Info().Msg("shutting down http server")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.cleanup()
			return err
		}

		s.cleanup()
		return <-serverErr
	}
}

// cleanup closes history and other resources.
func (s *Server) cleanup() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close history")
		} else {
			s.log.Debug().Msg("history closed")
		}
	}
}
