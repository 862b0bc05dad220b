package widget

// EventType names a change on the widget surface.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTypingShown  EventType = "typing_shown"
	EventTypingHidden EventType = "typing_hidden"
	EventCleared      EventType = "cleared"
	EventScroll       EventType = "scroll"
	EventTurnRejected EventType = "turn_rejected"
	EventTurnQueued   EventType = "turn_queued"
)

// Event is delivered to subscribers in the order the controller produced it.
type Event struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"sessionId,omitempty"`
	Entry          *Entry    `json:"entry,omitempty"`
	Text           string    `json:"text,omitempty"`
	TranscriptSize int       `json:"transcriptSize"`
	State          State     `json:"state"`
}

// Listener receives controller events. It runs under the controller lock,
// so it must not block or call back into the controller.
type Listener func(Event)
