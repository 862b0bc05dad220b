package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	chathandler "github.com/courseai/courseai/backend/internal/handler/chat"
	chatmodel "github.com/courseai/courseai/backend/internal/model/chat"
	chatService "github.com/courseai/courseai/backend/internal/service/chat"
	"github.com/courseai/courseai/backend/internal/widget"
	"github.com/courseai/courseai/backend/pkg/utils"
)

const eventBuffer = 64

// Handler streams a single widget turn via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// ServeHTTP handles GET /stream/{sessionID}?message=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage, ok := r.URL.Query()["message"]
	if !ok || len(userMessage) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage[0]); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("session", sessionID).Msg("stream ended with error")
	}
}

// HandleStreamRequest submits userMessage and relays the turn's events until
// the bot reply to it has been appended. A client disconnect stops relaying;
// the turn itself still completes.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string) error {
	logger := zerolog.Ctx(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return errors.New("streaming unsupported")
	}

	ctrl, err := h.chatSvc.Controller(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return err
	}

	events := make(chan widget.Event, eventBuffer)
	unsubscribe := ctrl.Subscribe(func(ev widget.Event) {
		select {
		case events <- ev:
		default:
			logger.Warn().Str("session", sessionID).Str("event", string(ev.Type)).Msg("sse subscriber lagging, event dropped")
		}
	})
	defer unsubscribe()

	sub, err := ctrl.Submit(userMessage)
	if errors.Is(err, widget.ErrEmptyInput) {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	if err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return nil
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "start", map[string]any{
		"sessionId": sessionID,
		"messageId": sub.MessageID,
		"queued":    sub.Queued,
		"position":  sub.Position,
	}); err != nil {
		return err
	}

	tracker := &turnTracker{messageID: sub.MessageID}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if !tracker.relevant(ev) {
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return fmt.Errorf("relay %s: %w", ev.Type, err)
			}
			if tracker.done {
				return utils.SendSSEEvent(w, flusher, "end", map[string]any{
					"sessionId": sessionID,
					"finished":  true,
				})
			}
		}
	}
}

// turnTracker follows one submission, identified by its user message id,
// through the event stream. Events from turns queued ahead of it are skipped.
type turnTracker struct {
	messageID string
	started   bool
	done      bool
}

func (t *turnTracker) relevant(ev widget.Event) bool {
	if t.done {
		return false
	}

	if !t.started {
		if ev.Type != widget.EventMessage || ev.Entry == nil || ev.Entry.Sender != chatmodel.SenderUser {
			return false
		}
		if ev.Entry.ID != t.messageID {
			return false
		}
		t.started = true
		return true
	}

	if ev.Type == widget.EventMessage && ev.Entry != nil && ev.Entry.Sender == chatmodel.SenderBot {
		t.done = true
	}
	return true
}
