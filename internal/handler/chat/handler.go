package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/logger"
	"github.com/ingelean/inge-go/internal/session"
)

// Handler exposes the session controller over HTTP.
type Handler struct {
	ctrl *session.Controller
}

// New creates the chat handler.
func New(ctrl *session.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleSend)
	r.Post("/reset", h.handleReset)
	r.Get("/session", h.handleSession)
	r.Get("/metrics", h.handleMetrics)
	r.Post("/panel/toggle", h.handleTogglePanel)
	r.Post("/metrics/toggle", h.handleToggleMetrics)
}

// handleSend runs one round-trip through the controller.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.ctrl.Send(r.Context(), payload.Text)
	if errors.Is(err, session.ErrConversationBusy) || errors.Is(err, session.ErrSessionSuperseded) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reply == (chat.Message{}) {
		// Whitespace-only input is a silent no-op.
		respondError(w, http.StatusUnprocessableEntity, "message text is empty")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reply":   reply,
		"metrics": h.ctrl.Metrics(),
	})
}

// handleReset archives the session and starts a fresh one.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	conv := h.ctrl.Reset()
	respondJSON(w, http.StatusOK, map[string]string{"id": conv.ID})
}

// handleSession returns the live transcript and metrics.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// handleMetrics returns the current counters.
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ctrl.Metrics())
}

// handleTogglePanel flips the widget panel visibility flag.
func (h *Handler) handleTogglePanel(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"open": h.ctrl.TogglePanel()})
}

// handleToggleMetrics flips the metrics panel visibility flag.
func (h *Handler) handleToggleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"visible": h.ctrl.ToggleMetrics()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
