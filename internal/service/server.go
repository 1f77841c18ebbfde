package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP front of the lunch engine
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start blocks until the server stops; a graceful Stop is not an error
func (s *Server) Start() error {
	s.logger.Info("Starting tg-bot HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping tg-bot HTTP server")
	return s.httpServer.Shutdown(ctx)
}
