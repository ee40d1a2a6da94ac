package dashboard

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/logger"
	"github.com/ingelean/inge-go/internal/store"
)

// Handler serves the analytics read path over the conversation store.
type Handler struct {
	store store.Store
}

// New creates the dashboard handler.
func New(s store.Store) *Handler {
	return &Handler{store: s}
}

// RegisterRoutes mounts the dashboard endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleConversations)
}

// Summary aggregates every stored conversation.
type Summary struct {
	TotalConversations  int     `json:"totalConversations"`
	TotalMessages       int     `json:"totalMessages"`
	TotalUserMessages   int     `json:"totalUserMessages"`
	TotalBotMessages    int     `json:"totalBotMessages"`
	TotalWordsFromUsers int     `json:"totalWordsFromUsers"`
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// handleConversations lists stored conversations plus the aggregate summary.
func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListConversations(r.Context())
	if err != nil {
		logger.L.Error("failed to list conversations", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read conversations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"conversations": records,
		"summary":       Summarize(records),
	})
}

// Summarize folds stored conversations into dashboard totals. The average
// response time is the mean of the per-conversation stored averages,
// counting only conversations that measured at least one response.
func Summarize(records []store.ConversationRecord) Summary {
	var s Summary
	s.TotalConversations = len(records)

	var responseTimeSum float64
	var responseCount int
	for _, rec := range records {
		s.TotalMessages += len(rec.Messages)
		for _, msg := range rec.Messages {
			switch msg.Sender {
			case chat.SenderUser:
				s.TotalUserMessages++
				s.TotalWordsFromUsers += len(strings.Fields(msg.Text))
			case chat.SenderBot:
				s.TotalBotMessages++
			}
		}
		if rec.Metrics.AverageResponseTime > 0 {
			responseTimeSum += rec.Metrics.AverageResponseTime
			responseCount++
		}
	}
	if responseCount > 0 {
		s.AverageResponseTime = math.Round(responseTimeSum / float64(responseCount))
	}
	return s
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
