// Package server exposes the coordinator over HTTP: queries are answered on a
// server-sent event stream or a WebSocket, and running sessions can be
// cancelled by id.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	orchestration "github.com/PaulBappoo/Deeperseek/core"
	"github.com/PaulBappoo/Deeperseek/core/client"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxQueryBody    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	coordinator *orchestration.Coordinator
	heartbeat   time.Duration
	upgrader    websocket.Upgrader
}

type Option func(*Server)

// WithHeartbeat sets how often idle event streams receive a keep-alive
// comment.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) {
		if interval > 0 {
			s.heartbeat = interval
		}
	}
}

// WithCheckOrigin overrides the WebSocket origin check. By default every
// origin is accepted.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

func New(coordinator *orchestration.Coordinator, opts ...Option) *Server {
	s := &Server{
		coordinator: coordinator,
		heartbeat:   relay.DefaultHeartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the traced HTTP handler of every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+client.QueryPath, jsonErrorMiddleware(s.handleQuery))
	mux.Handle("GET "+client.QueryPath+"/ws", jsonErrorMiddleware(s.handleQueryWebSocket))
	mux.Handle("DELETE "+client.SessionsPath+"{id}", jsonErrorMiddleware(s.handleCancelSession))
	mux.Handle("GET /api/schema/relay", jsonErrorMiddleware(s.handleRelaySchema))
	mux.Handle("GET /healthz", jsonErrorMiddleware(s.handleHealth))
	return otelhttp.NewHandler(mux, "deeperseek")
}

// ListenAndServe serves until ctx is done, then cancels every running session
// so their streams end with a terminator, and shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "sessions", s.coordinator.Registry().Len())
	s.coordinator.Registry().CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) *apiError {
	id := r.PathValue("id")
	if err := s.coordinator.Registry().Cancel(id); err != nil {
		if errors.Is(err, orchestration.ErrSessionNotFound) {
			return &apiError{Status: http.StatusNotFound, Message: err.Error()}
		}
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleRelaySchema(w http.ResponseWriter, _ *http.Request) *apiError {
	writeJSON(w, http.StatusOK, relay.Schemas())
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) *apiError {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.coordinator.Registry().Len()})
	return nil
}
