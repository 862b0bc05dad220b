package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseai/courseai/backend/internal/analysis/intent"
	chatmodel "github.com/courseai/courseai/backend/internal/model/chat"
	chatservice "github.com/courseai/courseai/backend/internal/service/chat"
	"github.com/courseai/courseai/backend/internal/widget"
)

func setup(t *testing.T, cfg widget.Config) (*httptest.Server, *chatservice.Service, string) {
	t.Helper()
	svc := chatservice.NewService(intent.Default(), chatservice.Config{Widget: cfg})
	session, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/stream/{sessionID}", New(svc).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, session.ID
}

func streamURL(srv *httptest.Server, sessionID, message string) string {
	return srv.URL + "/stream/" + sessionID + "?message=" + url.QueryEscape(message)
}

func readEventNames(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

// stepScheduler holds replies until the test releases them.
type stepScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *stepScheduler) schedule(_ time.Duration, fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

func (s *stepScheduler) fireAll(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.mu.Lock()
		require.NotEmpty(t, s.pending, "reply %d was never scheduled", i+1)
		fn := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		fn()
	}
}

func TestStreamRelaysWholeTurn(t *testing.T) {
	srv, svc, sessionID := setup(t, widget.Config{ReplyDelay: 5 * time.Millisecond})

	resp, err := http.Get(streamURL(srv, sessionID, "What courses do you recommend?"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	assert.Equal(t, []string{
		"start",
		"message", "scroll",
		"typing_shown", "scroll",
		"typing_hidden",
		"message",
		"end",
	}, readEventNames(t, resp))

	transcript, err := svc.LoadTranscript(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, 3)
}

func TestStreamRequiresMessage(t *testing.T) {
	srv, _, sessionID := setup(t, widget.Config{ReplyDelay: time.Millisecond})

	resp, err := http.Get(srv.URL + "/stream/" + sessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamWhitespaceIsNoop(t *testing.T) {
	srv, svc, sessionID := setup(t, widget.Config{ReplyDelay: time.Millisecond})

	resp, err := http.Get(streamURL(srv, sessionID, "   "))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	transcript, err := svc.LoadTranscript(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, 1)
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _, _ := setup(t, widget.Config{ReplyDelay: time.Millisecond})

	resp, err := http.Get(streamURL(srv, "missing", "hi"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamBusyConflicts(t *testing.T) {
	srv, svc, sessionID := setup(t, widget.Config{ReplyDelay: time.Hour})
	_, err := svc.Submit(context.Background(), sessionID, "hello")
	require.NoError(t, err)

	resp, err := http.Get(streamURL(srv, sessionID, "hi"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTurnTrackerSkipsEarlierTurns(t *testing.T) {
	tracker := &turnTracker{messageID: "m2"}

	other := widget.Event{Type: widget.EventMessage, Entry: &widget.Entry{Message: chatmodel.Message{ID: "m1", Sender: chatmodel.SenderUser, Text: "thanks"}}}
	otherReply := widget.Event{Type: widget.EventMessage, Entry: &widget.Entry{Message: chatmodel.Message{ID: "b1", Sender: chatmodel.SenderBot, Text: "hi"}}}
	own := widget.Event{Type: widget.EventMessage, Entry: &widget.Entry{Message: chatmodel.Message{ID: "m2", Sender: chatmodel.SenderUser, Text: "thanks"}}}
	typing := widget.Event{Type: widget.EventTypingShown}
	ownReply := widget.Event{Type: widget.EventMessage, Entry: &widget.Entry{Message: chatmodel.Message{ID: "b2", Sender: chatmodel.SenderBot, Text: "welcome"}}}

	assert.False(t, tracker.relevant(other), "same text from an earlier turn is not ours")
	assert.False(t, tracker.relevant(otherReply))
	assert.True(t, tracker.relevant(own))
	assert.True(t, tracker.relevant(typing))
	assert.True(t, tracker.relevant(ownReply))
	assert.True(t, tracker.done)
	assert.False(t, tracker.relevant(typing))
}

func TestStreamQueuedDuplicateFollowsItsOwnTurn(t *testing.T) {
	sched := &stepScheduler{}
	srv, svc, sessionID := setup(t, widget.Config{Policy: widget.PolicyQueue, Scheduler: sched.schedule})

	first, err := svc.Submit(context.Background(), sessionID, "thanks")
	require.NoError(t, err)
	queued, err := svc.Submit(context.Background(), sessionID, "thanks")
	require.NoError(t, err)
	require.True(t, queued.Queued)

	resp, err := http.Get(streamURL(srv, sessionID, "thanks"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sched.fireAll(t, 3)

	var userIDs []string
	for _, ev := range readEvents(t, resp.Body) {
		if ev.name != string(widget.EventMessage) {
			continue
		}
		var payload widget.Event
		require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
		if payload.Entry.Sender == chatmodel.SenderUser {
			userIDs = append(userIDs, payload.Entry.ID)
		}
	}
	require.Len(t, userIDs, 1)
	assert.NotEqual(t, first.MessageID, userIDs[0])
	assert.NotEqual(t, queued.MessageID, userIDs[0])
}
