package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	chatService "github.com/courseai/courseai/backend/internal/service/chat"
	"github.com/courseai/courseai/backend/internal/widget"
	"github.com/courseai/courseai/backend/pkg/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	outboxSize   = 128
	maxFrameSize = 64 << 10
)

// WebSocketHandler carries the full widget event stream of a session.
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket handler.
func NewWebSocketHandler(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// SubmitMessage is the payload of an inbound "submit" frame.
type SubmitMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connection struct {
	sessionID string
	conn      *websocket.Conn
	chatSvc   *chatService.Service
	outbox    chan outgoingMessage
	log       zerolog.Logger
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctrl, err := h.chatSvc.Controller(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	logger := hlog.FromRequest(r).With().Str("session", sessionID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{
		sessionID: sessionID,
		conn:      conn,
		chatSvc:   h.chatSvc,
		outbox:    make(chan outgoingMessage, outboxSize),
		log:       logger,
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	unsubscribe := ctrl.Subscribe(func(ev widget.Event) {
		c.enqueue(outgoingMessage{Type: "event", SessionID: sessionID, Data: ev})
	})
	defer unsubscribe()

	c.enqueue(outgoingMessage{Type: "connected", SessionID: sessionID, Data: map[string]any{
		"transcript": ctrl.Transcript(),
		"typing":     ctrl.Typing(),
		"state":      ctrl.State(),
	}})

	go c.writeLoop(ctx)

	logger.Info().Msg("websocket connected")
	c.readLoop(ctx)
	logger.Info().Msg("websocket closed")
}

func (c *connection) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		// An open socket keeps its session alive between messages.
		_ = c.chatSvc.Touch(ctx, c.sessionID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != c.sessionID {
			c.sendError("session mismatch")
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

func (c *connection) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		var payload SubmitMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid submit payload")
			return
		}
		sub, err := c.chatSvc.Submit(ctx, c.sessionID, payload.Text)
		switch {
		case errors.Is(err, widget.ErrEmptyInput):
			return
		case err != nil:
			c.sendError(err.Error())
			return
		}
		c.enqueue(outgoingMessage{Type: "ack", SessionID: c.sessionID, Data: map[string]any{
			"messageId":  sub.MessageID,
			"queued":     sub.Queued,
			"position":   sub.Position,
			"clearInput": true,
		}})
	case "clear":
		if _, err := c.chatSvc.Clear(ctx, c.sessionID); err != nil {
			c.sendError(err.Error())
		}
	case "transcript":
		transcript, err := c.chatSvc.LoadTranscript(ctx, c.sessionID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.enqueue(outgoingMessage{Type: "transcript", SessionID: c.sessionID, Data: transcript})
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// enqueue never blocks; it is called from controller listeners.
func (c *connection) enqueue(msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	select {
	case c.outbox <- msg:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("websocket outbox full, dropping message")
	}
}

func (c *connection) sendError(message string) {
	c.enqueue(outgoingMessage{Type: "error", Data: map[string]string{"message": message}})
}

// writeLoop is the only writer on the connection, as gorilla/websocket
// requires.
func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn().Err(err).Msg("websocket write failed")
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
