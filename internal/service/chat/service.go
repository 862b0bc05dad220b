package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/courseai/courseai/backend/internal/model/chat"
	"github.com/courseai/courseai/backend/internal/widget"
)

var ErrSessionNotFound = errors.New("session not found")

// Config tunes the session registry.
type Config struct {
	Widget widget.Config
	TTL    time.Duration
	Logger *zerolog.Logger
	Now    func() time.Time
}

type sessionState struct {
	session chat.Session
	ctrl    *widget.Controller
}

// Service owns one widget controller per page session.
type Service struct {
	selector widget.Selector
	cfg      Config
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState
	// detached holds controllers of deleted sessions whose reply has not
	// landed yet, so Drain still waits for them.
	detached map[*widget.Controller]struct{}
}

// NewService bootstraps the in-memory session registry.
func NewService(selector widget.Selector, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	cfg.Widget.Logger = &logger

	return &Service{
		selector: selector,
		cfg:      cfg,
		log:      logger,
		sessions: make(map[string]*sessionState),
		detached: make(map[*widget.Controller]struct{}),
	}
}

// CreateSession provisions a widget whose transcript holds the welcome entry.
func (s *Service) CreateSession(_ context.Context) (chat.Session, []widget.Entry, error) {
	now := s.cfg.Now().UTC()
	session := chat.Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		LastActive: now,
	}

	wcfg := s.cfg.Widget
	wcfg.ID = session.ID
	ctrl, err := widget.New(s.selector, wcfg)
	if err != nil {
		return chat.Session{}, nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionState{session: session, ctrl: ctrl}
	s.mu.Unlock()

	s.log.Info().Str("session", session.ID).Msg("session created")
	return session, ctrl.Transcript(), nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return st.session, nil
}

// Controller returns the widget of a session and marks it active.
func (s *Service) Controller(_ context.Context, sessionID string) (*widget.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	st.session.LastActive = s.cfg.Now().UTC()
	return st.ctrl, nil
}

// Touch marks a session active without using its widget. Long-lived
// connections call it to keep their session from being swept.
func (s *Service) Touch(ctx context.Context, sessionID string) error {
	_, err := s.Controller(ctx, sessionID)
	return err
}

// Submit forwards user text to the session's widget.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (widget.Submission, error) {
	ctrl, err := s.Controller(ctx, sessionID)
	if err != nil {
		return widget.Submission{}, err
	}
	return ctrl.Submit(text)
}

// Clear resets the session transcript to its welcome entry.
func (s *Service) Clear(ctx context.Context, sessionID string) ([]widget.Entry, error) {
	ctrl, err := s.Controller(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ctrl.Clear(), nil
}

// LoadTranscript returns the session's entries in order. Reading counts as
// activity.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]widget.Entry, error) {
	ctrl, err := s.Controller(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ctrl.Transcript(), nil
}

// DeleteSession drops a session. An in-flight reply still completes on the
// detached controller and Drain keeps waiting for it.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.pruneDetachedLocked()
	if st.ctrl.State() != widget.StateIdle {
		s.detached[st.ctrl] = struct{}{}
	}
	s.log.Info().Str("session", sessionID).Msg("session deleted")
	return nil
}

func (s *Service) pruneDetachedLocked() {
	for ctrl := range s.detached {
		if ctrl.State() == widget.StateIdle {
			delete(s.detached, ctrl)
		}
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes idle sessions whose last activity is older than the TTL.
// Sessions with a turn in flight are kept.
func (s *Service) Sweep() int {
	cutoff := s.cfg.Now().UTC().Add(-s.cfg.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneDetachedLocked()

	removed := 0
	for id, st := range s.sessions {
		if st.session.LastActive.After(cutoff) {
			continue
		}
		if st.ctrl.State() != widget.StateIdle {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Int("remaining", len(s.sessions)).Msg("expired sessions swept")
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Drain waits for every in-flight turn to finish, including turns of
// deleted sessions. Turns are never cancelled.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.RLock()
	ctrls := make([]*widget.Controller, 0, len(s.sessions)+len(s.detached))
	for _, st := range s.sessions {
		ctrls = append(ctrls, st.ctrl)
	}
	for ctrl := range s.detached {
		ctrls = append(ctrls, ctrl)
	}
	s.mu.RUnlock()

	for _, ctrl := range ctrls {
		if err := ctrl.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
