// Package server exposes the WebSocket broadcast endpoint and the HTTP
// phase API. The WebSocket side speaks the subscription protocol and
// feeds connections into the hub; the HTTP side fronts the phase
// transition manager.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tidecast/tidecast/internal/hub"
	"github.com/tidecast/tidecast/internal/phase"
	"github.com/tidecast/tidecast/internal/ratelimit"
	"github.com/tidecast/tidecast/internal/trip"
)

// Config holds all dependencies and settings for creating a Server.
// States and Limiter are optional (nil = no snapshot pushes, no rate
// limiting).
type Config struct {
	Hub     *hub.Hub
	Phases  *phase.Service
	States  trip.StateProvider
	Limiter ratelimit.Limiter
	Logger  *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
	SendBufferSize    int

	Version string
}

// Server is the tidecast HTTP/WebSocket server.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	hub    *hub.Hub
	phases *phase.Service
	states trip.StateProvider
	logger *slog.Logger

	upgrader websocket.Upgrader

	heartbeatInterval time.Duration
	writeWait         time.Duration
	maxMessageSize    int64
	sendBufferSize    int

	version string
}

// New creates a server with all routes configured.
func New(cfg Config) *Server {
	s := &Server{
		hub:               cfg.Hub,
		phases:            cfg.Phases,
		states:            cfg.States,
		logger:            cfg.Logger,
		heartbeatInterval: cfg.HeartbeatInterval,
		writeWait:         cfg.WriteWait,
		maxMessageSize:    cfg.MaxMessageSize,
		sendBufferSize:    cfg.SendBufferSize,
		version:           cfg.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced upstream; the service sits
			// behind the platform's edge.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)

	// Mutations carry a per-IP rate limit; reads and validation don't.
	limitRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Route("/trips/{tripID}/phase", func(r chi.Router) {
			r.Get("/", s.handlePhaseState)
			r.Post("/validate", s.handleValidate)
			r.Get("/capabilities", s.handleCapabilities)
			r.Get("/history", s.handleHistory)

			r.Group(func(r chi.Router) {
				r.Use(limitRL)
				r.Post("/transition", s.handleTransition)
				r.Post("/override", s.handleOverride)
				r.Post("/override/confirm", s.handleOverrideConfirm)
				r.Post("/cancel", s.handleCancel)
				r.Post("/reset", s.handleReset)
			})
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// handleWS upgrades the connection, registers it with the hub, and
// runs the pumps. The write pump owns the socket close.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn, s.sendBufferSize)
	s.hub.Register(c)

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.hub.Stats())
}
