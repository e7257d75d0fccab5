// Package api provides the thin HTTP/WebSocket gateway in front of the
// safety-gate orchestrator. It contains no pipeline logic: every handler
// maps a request onto the orchestrator's session interface and returns the
// resulting UI package.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kidvoice-labs/safegate/internal/orchestrator"
	"github.com/kidvoice-labs/safegate/internal/store"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTimeouts sets the HTTP read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(o *Opts) { o.ReadTimeout, o.WriteTimeout = read, write }
}

// Server wires the session manager and event log into HTTP handlers.
type Server struct {
	manager *orchestrator.Manager
	store   store.Store
	hub     *streamHub
	httpSrv *http.Server
}

// NewServer creates the gateway for a session manager. The store may be nil,
// disabling the review endpoint.
func NewServer(manager *orchestrator.Manager, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080", ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		manager: manager,
		store:   st,
		hub:     newStreamHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.endSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/events", s.eventHandler)
	mux.HandleFunc("POST /sessions/{id}/card", s.cardHandler)
	mux.HandleFunc("POST /sessions/{id}/choice", s.choiceHandler)
	mux.HandleFunc("POST /sessions/{id}/resume", s.resumeHandler)
	mux.HandleFunc("GET /sessions/{id}/events", s.reviewHandler)
	mux.HandleFunc("GET /sessions/{id}/stream", s.streamHandler)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the context is cancelled, then drains sessions and
// connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: gateway listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	s.manager.Shutdown()
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
