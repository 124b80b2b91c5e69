package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/session"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// ErrTooManySessions is returned by Open when MaxSessions controllers are
// already open.
var ErrTooManySessions = errors.New("app: too many active sessions")

// SessionInfo holds metadata about an open session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	PassageID string    `json:"passage_id"`
	OpenedAt  time.Time `json:"opened_at"`
	State     string    `json:"state"`
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	// Provider transcribes server-side audio. Nil limits sessions to
	// client-side transcripts.
	Provider stt.Provider

	// Metrics receives session metrics. Nil uses observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Session is the controller configuration of new sessions.
	Session session.Config

	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int
}

type managedSession struct {
	ctrl     *session.Controller
	passage  string
	openedAt time.Time
}

// SessionManager owns every open recitation session.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	provider stt.Provider
	metrics  *observe.Metrics
	cfg      session.Config
	max      int
	sessions map[string]*managedSession
	closed   bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &SessionManager{
		provider: cfg.Provider,
		metrics:  m,
		cfg:      cfg.Session,
		max:      cfg.MaxSessions,
		sessions: make(map[string]*managedSession),
	}
}

// Open creates a controller for p and loads it. onUpdate may be nil. The
// caller must release the session with [SessionManager.Close].
func (sm *SessionManager) Open(p *passage.Passage, onUpdate func(session.Snapshot)) (*session.Controller, error) {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return nil, fmt.Errorf("app: open session: %w", session.ErrClosed)
	}
	if sm.max > 0 && len(sm.sessions) >= sm.max {
		sm.mu.Unlock()
		return nil, ErrTooManySessions
	}
	opts := []session.Option{session.WithMetrics(sm.metrics)}
	if sm.provider != nil {
		opts = append(opts, session.WithProvider(sm.provider))
	}
	if onUpdate != nil {
		opts = append(opts, session.OnUpdate(onUpdate))
	}
	ctrl := session.New(sm.cfg, opts...)
	sm.sessions[ctrl.ID()] = &managedSession{ctrl: ctrl, passage: p.ID, openedAt: time.Now().UTC()}
	sm.mu.Unlock()

	if err := ctrl.Load(p); err != nil {
		sm.Close(ctrl.ID())
		return nil, fmt.Errorf("app: load passage %q: %w", p.ID, err)
	}
	slog.Info("session opened", "session_id", ctrl.ID(), "passage", p.ID)
	return ctrl, nil
}

// Get returns the open session with the given id.
func (sm *SessionManager) Get(id string) (*session.Controller, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	return s.ctrl, true
}

// Close closes and forgets the session with the given id. Unknown ids are
// ignored.
func (sm *SessionManager) Close(id string) {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return
	}
	if err := s.ctrl.Close(); err != nil {
		slog.Warn("session close error", "session_id", id, "err", err)
	}
	slog.Info("session closed", "session_id", id, "passage", s.passage)
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// List returns metadata about every open session.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	ms := make([]*managedSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		ms = append(ms, s)
	}
	sm.mu.Unlock()

	out := make([]SessionInfo, 0, len(ms))
	for _, s := range ms {
		out = append(out, SessionInfo{
			SessionID: s.ctrl.ID(),
			PassageID: s.passage,
			OpenedAt:  s.openedAt,
			State:     string(s.ctrl.State()),
		})
	}
	return out
}

// SetConfig replaces the controller configuration for sessions opened later.
// Open sessions keep the configuration they started with.
func (sm *SessionManager) SetConfig(cfg session.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("app: session config: %w", err)
	}
	sm.mu.Lock()
	sm.cfg = cfg
	sm.mu.Unlock()
	return nil
}

// Config returns the configuration new sessions are opened with.
func (sm *SessionManager) Config() session.Config {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cfg
}

// CloseAll closes every open session and rejects later Open calls.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sm.closed = true
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		sm.Close(id)
	}
}
