// Package api provides the HTTP handlers for the inquiry wizard.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peaklee4u/inquirytutor/internal/chatlog"
	"github.com/peaklee4u/inquirytutor/internal/store"
	"github.com/peaklee4u/inquirytutor/internal/tutor"
)

// Renderer executes a named page template.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// Options tunes a Handler.
type Options struct {
	// MaxUploadBytes caps each attached file.
	MaxUploadBytes int64
	// AllowedOrigin is the origin accepted for websocket upgrades.
	AllowedOrigin string
	IsDev         bool
	// HealthCheckTimeout bounds the database ping in Health.
	HealthCheckTimeout time.Duration
	Now                func() time.Time
}

// Handler serves the wizard pages and their JSON and websocket companions.
type Handler struct {
	tutor *tutor.Service
	repo  store.Repository
	pages Renderer
	log   chatlog.Logger

	maxUpload          int64
	allowedOrigin      string
	isDev              bool
	healthCheckTimeout time.Duration
	now                func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *tutor.Service, repo store.Repository, pages Renderer, log chatlog.Logger, opts Options) *Handler {
	if log == nil {
		log = chatlog.Noop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		tutor:              svc,
		repo:               repo,
		pages:              pages,
		log:                log,
		maxUpload:          opts.MaxUploadBytes,
		allowedOrigin:      opts.AllowedOrigin,
		isDev:              opts.IsDev,
		healthCheckTimeout: opts.HealthCheckTimeout,
		now:                opts.Now,
	}
}

// RegisterRoutes registers the wizard routes. The session middleware must
// already be installed on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Page)
	r.Post("/identify", h.Identify)
	r.Post("/next", h.Next)
	r.Post("/prev", h.Prev)
	r.Post("/restart", h.Restart)
	r.Post("/chat", h.Chat)

	r.Get("/ws/chat", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.Session)
		r.Get("/health", h.Health)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("Failed to write JSON response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health returns the health status of the API and its database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":  "healthy",
		"profile": h.tutor.Profile().Key,
		"checks":  checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}
