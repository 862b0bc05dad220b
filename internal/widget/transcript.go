package widget

import (
	"github.com/courseai/courseai/backend/internal/model/chat"
)

// Entry is a transcript message together with its rendered markup.
type Entry struct {
	chat.Message
	HTML string `json:"html"`
}

// Transcript is the ordered, append-only visual log of a widget. The first
// entry is the welcome message and survives Clear. Transcript is not safe
// for concurrent use; the owning Controller serialises access.
type Transcript struct {
	entries []Entry
	typing  *Entry
	notify  func(EventType, *Entry)
}

// NewTranscript seeds a transcript with its permanent welcome entry.
// notify may be nil.
func NewTranscript(welcome chat.Message, notify func(EventType, *Entry)) *Transcript {
	if notify == nil {
		notify = func(EventType, *Entry) {}
	}
	return &Transcript{
		entries: []Entry{newEntry(welcome)},
		notify:  notify,
	}
}

func newEntry(msg chat.Message) Entry {
	return Entry{Message: msg, HTML: renderMessage(msg)}
}

// Append adds a message to the end of the log and scrolls to it.
func (t *Transcript) Append(msg chat.Message) Entry {
	entry := newEntry(msg)
	t.entries = append(t.entries, entry)
	t.notify(EventMessage, &entry)
	t.notify(EventScroll, nil)
	return entry
}

// Clear drops every entry except the welcome entry and reports how many
// entries were removed. The typing placeholder is not an entry and is kept.
func (t *Transcript) Clear() int {
	removed := len(t.entries) - 1
	t.entries = t.entries[:1:1]
	t.notify(EventCleared, nil)
	return removed
}

// ShowTyping inserts the placeholder. It reports false when one is already
// live, in which case nothing changes.
func (t *Transcript) ShowTyping() bool {
	if t.typing != nil {
		return false
	}
	entry := Entry{
		Message: chat.Message{ID: TypingIndicatorID, Sender: chat.SenderBot},
		HTML:    renderTyping(TypingIndicatorID),
	}
	t.typing = &entry
	t.notify(EventTypingShown, &entry)
	t.notify(EventScroll, nil)
	return true
}

// HideTyping removes the placeholder if present.
func (t *Transcript) HideTyping() bool {
	if t.typing == nil {
		return false
	}
	entry := *t.typing
	t.typing = nil
	t.notify(EventTypingHidden, &entry)
	return true
}

// Entries returns a copy of the log in insertion order.
func (t *Transcript) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

// Typing reports whether the placeholder is live.
func (t *Transcript) Typing() bool {
	return t.typing != nil
}
