package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	chatmodel "github.com/courseai/courseai/backend/internal/model/chat"
	chatService "github.com/courseai/courseai/backend/internal/service/chat"
	"github.com/courseai/courseai/backend/internal/widget"
	"github.com/courseai/courseai/backend/pkg/utils"
)

// Handler exposes chat widget sessions over JSON.
type Handler struct {
	chatSvc     *chatService.Service
	submitLimit func(http.Handler) http.Handler
}

// New creates the chat handler. submitLimit wraps the submit route and may be nil.
func New(chatSvc *chatService.Service, submitLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		submitLimit: submitLimit,
	}
}

// RegisterRoutes registers the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/messages", h.handleTranscript)
		if h.submitLimit != nil {
			r.With(h.submitLimit).Post("/messages", h.handleSubmit)
		} else {
			r.Post("/messages", h.handleSubmit)
		}
		r.Post("/clear", h.handleClear)
		r.Delete("/", h.handleDelete)
	})
}

type sessionResponse struct {
	Session    chatmodel.Session `json:"session"`
	Transcript []widget.Entry    `json:"transcript"`
}

type submitResponse struct {
	widget.Submission
	Accepted   bool `json:"accepted"`
	ClearInput bool `json:"clearInput"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, transcript, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Session: session, Transcript: transcript})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	transcript, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session, Transcript: transcript})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if errors.Is(err, widget.ErrEmptyInput) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, submitResponse{Submission: sub, Accepted: true, ClearInput: true})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	transcript, err := h.chatSvc.Clear(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"transcript": transcript})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps service and widget errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, widget.ErrTurnInFlight), errors.Is(err, widget.ErrQueueFull):
		return http.StatusConflict
	case errors.Is(err, widget.ErrEmptyInput):
		return http.StatusNoContent
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, err.Error())
}
