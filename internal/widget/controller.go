package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/courseai/courseai/backend/internal/model/chat"
)

var (
	ErrEmptyInput      = errors.New("empty input")
	ErrTurnInFlight    = errors.New("a reply is already being typed")
	ErrQueueFull       = errors.New("submission queue is full")
	ErrMissingSelector = errors.New("widget requires a response selector")
)

// State is the turn state machine position.
type State string

const (
	StateIdle          State = "idle"
	StateUserSubmitted State = "user_submitted"
	StateBotTyping     State = "bot_typing"
	StateBotReplied    State = "bot_replied"
)

// BusyPolicy decides what happens to a submission while a turn is in flight.
type BusyPolicy string

const (
	PolicyReject BusyPolicy = "reject"
	PolicyQueue  BusyPolicy = "queue"
)

// ParseBusyPolicy validates a policy name.
func ParseBusyPolicy(raw string) (BusyPolicy, error) {
	switch p := BusyPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyReject, PolicyQueue:
		return p, nil
	case "":
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown busy policy %q", raw)
	}
}

const (
	DefaultReplyDelay = 1500 * time.Millisecond
	DefaultQueueLimit = 8
	DefaultTimeFormat = "03:04 PM"
	DefaultWelcome    = `👋 Hi! I'm the CourseAI assistant. Ask me about courses, programming, machine learning or study tips and I'll point you in the right direction.`
)

// Selector maps user text to the name of the matched rule and its template.
type Selector interface {
	Match(text string) (rule string, template string)
}

// Scheduler runs fn once after d. It must not call fn before returning.
type Scheduler func(d time.Duration, fn func())

func afterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Config tunes a Controller. Zero values fall back to the defaults above,
// except ReplyDelay: zero replies as soon as the scheduler fires.
type Config struct {
	ID         string
	ReplyDelay time.Duration
	Policy     BusyPolicy
	QueueLimit int
	TimeFormat string
	Welcome    string
	Logger     *zerolog.Logger
	Scheduler  Scheduler
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ReplyDelay < 0 {
		c.ReplyDelay = 0
	}
	if c.Policy == "" {
		c.Policy = PolicyReject
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = DefaultQueueLimit
	}
	if c.TimeFormat == "" {
		c.TimeFormat = DefaultTimeFormat
	}
	if c.Welcome == "" {
		c.Welcome = DefaultWelcome
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Scheduler == nil {
		c.Scheduler = afterFunc
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Submission describes how Submit handled accepted text. MessageID is the
// id the user message carries once it reaches the transcript, including for
// queued submissions that have no Entry yet.
type Submission struct {
	MessageID string `json:"messageId"`
	Queued    bool   `json:"queued"`
	Position  int    `json:"position,omitempty"`
	Entry     *Entry `json:"entry,omitempty"`
}

type pendingTurn struct {
	id   string
	text string
}

// Controller owns one widget instance: its transcript, typing placeholder
// and turn state. It is safe for concurrent use.
type Controller struct {
	cfg      Config
	selector Selector
	log      zerolog.Logger

	mu         sync.Mutex
	transcript *Transcript
	state      State
	queue      []pendingTurn
	idle       chan struct{}
	listeners  map[int]Listener
	nextID     int
}

// New builds a controller whose transcript holds only the welcome entry.
func New(selector Selector, cfg Config) (*Controller, error) {
	if selector == nil {
		return nil, ErrMissingSelector
	}
	if _, err := ParseBusyPolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:       cfg,
		selector:  selector,
		log:       cfg.Logger.With().Str("session", cfg.ID).Logger(),
		state:     StateIdle,
		idle:      make(chan struct{}),
		listeners: make(map[int]Listener),
	}
	close(c.idle)
	c.transcript = NewTranscript(c.newMessage(chat.SenderBot, cfg.Welcome), c.notify)
	return c, nil
}

// ID returns the identifier carried on every event.
func (c *Controller) ID() string {
	return c.cfg.ID
}

// Subscribe registers l for future events. The returned func removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Submit trims text and starts a turn. Whitespace-only input returns
// ErrEmptyInput and has no other effect.
func (c *Controller) Submit(text string) (Submission, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Submission{}, ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return c.handleBusyLocked(trimmed)
	}

	c.idle = make(chan struct{})
	entry := c.startTurnLocked(pendingTurn{id: uuid.NewString(), text: trimmed})
	return Submission{MessageID: entry.ID, Entry: &entry}, nil
}

func (c *Controller) handleBusyLocked(text string) (Submission, error) {
	if c.cfg.Policy == PolicyQueue {
		if len(c.queue) >= c.cfg.QueueLimit {
			c.emitLocked(Event{Type: EventTurnRejected, Text: text})
			return Submission{}, ErrQueueFull
		}
		turn := pendingTurn{id: uuid.NewString(), text: text}
		c.queue = append(c.queue, turn)
		c.emitLocked(Event{Type: EventTurnQueued, Text: text})
		c.log.Debug().Int("position", len(c.queue)).Msg("submission queued")
		return Submission{MessageID: turn.id, Queued: true, Position: len(c.queue)}, nil
	}

	c.emitLocked(Event{Type: EventTurnRejected, Text: text})
	return Submission{}, ErrTurnInFlight
}

func (c *Controller) startTurnLocked(turn pendingTurn) Entry {
	c.state = StateUserSubmitted
	msg := c.newMessage(chat.SenderUser, Escape(turn.text))
	msg.ID = turn.id
	entry := c.transcript.Append(msg)

	c.state = StateBotTyping
	c.transcript.ShowTyping()

	c.cfg.Scheduler(c.cfg.ReplyDelay, func() { c.reply(turn.text) })
	return entry
}

func (c *Controller) reply(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript.HideTyping()
	rule, template := c.selector.Match(text)
	c.state = StateBotReplied
	c.transcript.Append(c.newMessage(chat.SenderBot, template))
	c.log.Debug().Str("rule", rule).Int("entries", c.transcript.Len()).Msg("bot replied")

	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.startTurnLocked(next)
		return
	}

	c.state = StateIdle
	close(c.idle)
}

// Clear removes every entry but the welcome message. Turn state, the queue
// and a live typing placeholder are left untouched.
func (c *Controller) Clear() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.transcript.Clear()
	c.log.Debug().Int("removed", removed).Msg("transcript cleared")
	return c.transcript.Entries()
}

// Wait blocks until no turn is in flight and nothing is queued.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transcript returns a snapshot of the entries.
func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Entries()
}

// Typing reports whether the typing placeholder is shown.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Typing()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of queued submissions.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Controller) newMessage(sender chat.Sender, text string) chat.Message {
	now := c.cfg.Now()
	return chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: now.Format(c.cfg.TimeFormat),
		CreatedAt: now.UTC(),
	}
}

// notify is the transcript callback; it always runs with c.mu held, except
// while New seeds the welcome entry, which emits nothing.
func (c *Controller) notify(t EventType, entry *Entry) {
	c.emitLocked(Event{Type: t, Entry: entry})
}

func (c *Controller) emitLocked(ev Event) {
	ev.SessionID = c.cfg.ID
	ev.State = c.state
	if c.transcript != nil {
		ev.TranscriptSize = c.transcript.Len()
	}
	for _, l := range c.listeners {
		l(ev)
	}
}
