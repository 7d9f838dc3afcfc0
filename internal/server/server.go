// Package server exposes the session store over HTTP and websocket
// gateways. Neither gateway holds session state of its own; both translate
// store results into responses and broadcasts.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sprintpoker/internal/session"
)

// Server wraps the HTTP handlers, the websocket registry and configuration.
type Server struct {
	cfg             Config
	logger          *zap.Logger
	store           *session.Store
	mux             *http.ServeMux
	allowedOrigins  []string
	allowAllOrigins bool

	hub *hub
}

// New constructs a Server with routes and middleware configured.
func New(cfg Config, logger *zap.Logger, store *session.Store) *Server {
	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		hub:            newHub(logger),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}

	srv.routes()
	return srv
}

// Handler returns the full middleware-wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.loggingMiddleware(s.mux))
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + s.cfg.Port
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /rooms/{code}", s.handleGetRoom)
	s.mux.HandleFunc("POST /rooms/{code}/join", s.handleJoinRoom)
	s.mux.HandleFunc("DELETE /rooms/{code}/participants/{participantId}", s.handleLeaveRoom)
	s.mux.HandleFunc("PUT /rooms/{code}/story", s.handleUpdateStory)
	s.mux.HandleFunc("POST /rooms/{code}/vote", s.handleSubmitVote)
	s.mux.HandleFunc("POST /rooms/{code}/reveal", s.handleRevealVotes)
	s.mux.HandleFunc("POST /rooms/{code}/reset", s.handleResetVoting)
	s.mux.HandleFunc("POST /rooms/{code}/start", s.handleStartEstimation)
	s.mux.HandleFunc("GET /rooms/{code}/results", s.handleGetResults)
	s.mux.HandleFunc("GET /rooms/{code}/participants", s.handleGetParticipants)

	s.mux.HandleFunc("GET /ws/rooms/{code}", s.handleWebsocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Hijack allows the websocket upgrade to reach the underlying connection
// through the wrapped writer.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
