package infra

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTPServer owns the listener of the frame API.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer applies the configured timeouts. The write timeout has to
// cover a full regeneration plus a video render, since /api/next blocks on
// both.
func NewHTTPServer(cfg *Config, handler http.Handler, base context.Context) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	if base != nil {
		srv.BaseContext = func(net.Listener) context.Context { return base }
	}
	return &HTTPServer{server: srv}
}

// Addr is the listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *HTTPServer) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
