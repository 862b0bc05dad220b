package home

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/courseai/courseai/backend/pkg/utils"
)

// PageTitle is the homepage title shown next to the widget.
const PageTitle = "CourseAI - AI-Powered Learning"

// Handler serves the static homepage endpoints.
type Handler struct {
	replyDelay time.Duration
}

func New(replyDelay time.Duration) *Handler {
	return &Handler{replyDelay: replyDelay}
}

// RegisterRoutes registers /info on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/info", h.handleInfo)
}

func (h *Handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"pageTitle":    PageTitle,
		"replyDelayMs": h.replyDelay.Milliseconds(),
	})
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
