package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"call-transcription-bot/internal/asr"
	"call-transcription-bot/internal/call"
	"call-transcription-bot/internal/observability/logging"
)

// FactoryFor builds a transport factory for one call, letting the
// manager hand each session its own connection instances.
type FactoryFor func(info call.Info) asr.Factory

// Manager tracks the live sessions, one per call, and drives their
// lifecycle from call-state transitions.
type Manager struct {
	cfg        Config
	factoryFor FactoryFor
	store      SnapshotStore
	pub        EventPublisher
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager sharing one store and publisher
// across sessions.
func NewManager(cfg Config, factoryFor FactoryFor, st SnapshotStore, pub EventPublisher) *Manager {
	return &Manager{
		cfg:        cfg,
		factoryFor: factoryFor,
		store:      st,
		pub:        pub,
		log:        logging.WithComponent("session-manager"),
		sessions:   make(map[string]*Session),
	}
}

// StartSession creates and starts a pipeline for the call. Starting a
// call that already has a live session is an error.
func (m *Manager) StartSession(ctx context.Context, info call.Info, roster call.Roster) (*Session, error) {
	id := info.SessionID()

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: %s already active", id)
	}
	s := New(info, roster, m.factoryFor(info), m.cfg, m.store, m.pub)
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// Get returns the live session for the id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// StopSession tears the call's pipeline down and forgets it.
func (m *Manager) StopSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Stop()
	return true
}

// OnCallState reacts to a call-state transition from the platform:
// an active call gets a session, a terminated call loses it. Other
// states are ignored.
func (m *Manager) OnCallState(ctx context.Context, info call.Info, state call.State, roster call.Roster) {
	log := logging.WithSession(info.MeetingID, info.CallID)
	switch state {
	case call.StateActive:
		if _, err := m.StartSession(ctx, info, roster); err != nil {
			log.Error().Err(err).Msg("Session start failed")
		}
	case call.StateTerminated:
		if m.StopSession(info.SessionID()) {
			log.Info().Msg("Session stopped on call termination")
		}
	}
}

// Status describes one live session for inspection surfaces.
type Status struct {
	SessionID     string `json:"sessionId"`
	MeetingID     string `json:"meetingId"`
	CallID        string `json:"callId"`
	ConnState     string `json:"connState"`
	TranscriptLen int    `json:"transcriptLen"`
}

// Statuses returns a point-in-time view of every live session.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, s := range all {
		out = append(out, Status{
			SessionID:     s.ID(),
			MeetingID:     s.info.MeetingID,
			CallID:        s.info.CallID,
			ConnState:     s.ConnState().String(),
			TranscriptLen: len(s.Transcript()),
		})
	}
	return out
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StopAll tears every live session down, used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if len(all) > 0 {
		m.log.Info().Int("sessions", len(all)).Msg("Stopping all sessions")
	}
	for _, s := range all {
		s.Stop()
	}
}
