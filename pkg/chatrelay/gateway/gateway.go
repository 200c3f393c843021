// Package gateway exposes the relay over HTTP: the platform webhook
// callback, a liveness root, a health endpoint, and a small session
// admin API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/engine"
)

// Backend is the surface the gateway needs from the bot.
type Backend interface {
	WebhookHandler() http.HandlerFunc
	ListSessions() []engine.SessionMeta
	DeleteSession(userID string) bool
	SessionCount() int
	PendingReminders() int
}

// Gateway is the HTTP server for the relay.
type Gateway struct {
	backend   Backend
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a gateway listening on addr.
func New(addr string, backend Backend, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		backend:   backend,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Liveness probe; also the keep-alive ping target.
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "Server is running!")
	})
	r.Get("/health", g.handleHealth)
	r.Post("/callback", g.backend.WebhookHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", g.handleListSessions)
		r.Delete("/sessions/{userID}", g.handleDeleteSession)
	})
	return r
}

// Start begins serving in the background. Listen errors other than a
// clean shutdown are reported on the returned channel.
func (g *Gateway) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc
}

// Stop gracefully shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("http server shutting down")
	return g.server.Shutdown(ctx)
}

type healthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Sessions         int    `json:"sessions"`
	PendingReminders int    `json:"pending_reminders"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Uptime:           time.Since(g.startedAt).Round(time.Second).String(),
		Sessions:         g.backend.SessionCount(),
		PendingReminders: g.backend.PendingReminders(),
	})
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := g.backend.ListSessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !g.backend.DeleteSession(userID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	g.logger.Info("session deleted via api", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
