package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseai/courseai/backend/internal/analysis/intent"
	chatmodel "github.com/courseai/courseai/backend/internal/model/chat"
	chatservice "github.com/courseai/courseai/backend/internal/service/chat"
	"github.com/courseai/courseai/backend/internal/widget"
)

type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, delay time.Duration) (*websocket.Conn, *chatservice.Service, string) {
	t.Helper()
	svc := chatservice.NewService(intent.Default(), chatservice.Config{Widget: widget.Config{ReplyDelay: delay}})
	return dialService(t, svc)
}

func dialService(t *testing.T, svc *chatservice.Service) (*websocket.Conn, *chatservice.Service, string) {
	t.Helper()
	session, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewWebSocketHandler(svc).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + session.ID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn, svc, session.ID
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "data": json.RawMessage(raw)}))
}

func TestWebSocketConnectedSnapshot(t *testing.T) {
	conn, _, sessionID := dial(t, time.Millisecond)

	f := readFrame(t, conn)
	require.Equal(t, "connected", f.Type)
	assert.Equal(t, sessionID, f.SessionID)

	var snapshot struct {
		Transcript []widget.Entry `json:"transcript"`
		Typing     bool           `json:"typing"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &snapshot))
	assert.Len(t, snapshot.Transcript, 1)
	assert.False(t, snapshot.Typing)
}

func TestWebSocketSubmitStreamsTurn(t *testing.T) {
	conn, _, _ := dial(t, 5*time.Millisecond)
	readFrame(t, conn)

	send(t, conn, "submit", SubmitMessage{Text: "<b>python</b> please"})

	var types []widget.EventType
	var userText, botText string
	sawAck := false
	for botText == "" {
		f := readFrame(t, conn)
		switch f.Type {
		case "ack":
			sawAck = true
		case "event":
			var ev widget.Event
			require.NoError(t, json.Unmarshal(f.Data, &ev))
			types = append(types, ev.Type)
			if ev.Type == widget.EventMessage && ev.Entry.Sender == chatmodel.SenderUser {
				userText = ev.Entry.Text
			}
			if ev.Type == widget.EventMessage && ev.Entry.Sender == chatmodel.SenderBot {
				botText = ev.Entry.Text
			}
		default:
			t.Fatalf("unexpected frame %q", f.Type)
		}
	}

	assert.True(t, sawAck)
	assert.Equal(t, "&lt;b&gt;python&lt;/b&gt; please", userText)
	assert.True(t, strings.HasPrefix(botText, "🐍"))
	assert.Contains(t, types, widget.EventTypingShown)
	assert.Contains(t, types, widget.EventTypingHidden)
}

func TestWebSocketRejectsOverlappingSubmit(t *testing.T) {
	conn, _, _ := dial(t, time.Hour)
	readFrame(t, conn)

	send(t, conn, "submit", SubmitMessage{Text: "hello"})
	send(t, conn, "submit", SubmitMessage{Text: "hello again"})

	sawError := false
	for i := 0; i < 10 && !sawError; i++ {
		f := readFrame(t, conn)
		if f.Type == "error" {
			sawError = true
			assert.Contains(t, string(f.Data), widget.ErrTurnInFlight.Error())
		}
	}
	assert.True(t, sawError)
}

func TestWebSocketUnknownType(t *testing.T) {
	conn, _, _ := dial(t, time.Millisecond)
	readFrame(t, conn)

	send(t, conn, "dance", map[string]string{})
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
}

func TestWebSocketUnknownSession(t *testing.T) {
	svc := chatservice.NewService(intent.Default(), chatservice.Config{})
	r := chi.NewRouter()
	NewWebSocketHandler(svc).RegisterWebSocketRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/ws/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestWebSocketTrafficKeepsSessionAlive(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := chatservice.NewService(intent.Default(), chatservice.Config{
		Widget: widget.Config{ReplyDelay: 5 * time.Millisecond},
		TTL:    time.Minute,
		Now:    clock.Now,
	})
	conn, _, sessionID := dialService(t, svc)
	readFrame(t, conn)

	clock.Advance(50 * time.Second)
	send(t, conn, "submit", SubmitMessage{Text: "hello"})
	for replied := false; !replied; {
		f := readFrame(t, conn)
		if f.Type != "event" {
			continue
		}
		var ev widget.Event
		require.NoError(t, json.Unmarshal(f.Data, &ev))
		replied = ev.Type == widget.EventMessage && ev.Entry.Sender == chatmodel.SenderBot
	}

	clock.Advance(20 * time.Second)
	assert.Zero(t, svc.Sweep())
	_, err := svc.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
}

func TestWebSocketReportsDeletedSession(t *testing.T) {
	conn, svc, sessionID := dial(t, time.Millisecond)
	readFrame(t, conn)

	require.NoError(t, svc.DeleteSession(context.Background(), sessionID))
	send(t, conn, "submit", SubmitMessage{Text: "hello"})

	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, string(f.Data), chatservice.ErrSessionNotFound.Error())
}
