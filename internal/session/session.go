// Package session wires the audio gate, the supervised recognition
// transport, the transcript accumulator and the snapshot store into
// one pipeline per hosted call, and owns that pipeline's lifecycle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"call-transcription-bot/internal/asr"
	"call-transcription-bot/internal/audio"
	"call-transcription-bot/internal/call"
	"call-transcription-bot/internal/events"
	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
	"call-transcription-bot/internal/transcript"
)

// SnapshotStore is the persistence surface the pipeline writes to.
// Writes are best-effort relative to the live call.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap transcript.Snapshot, status string) error
}

// EventPublisher is the event surface the pipeline announces on.
type EventPublisher interface {
	PublishUpdate(ctx context.Context, event events.TranscriptUpdated) error
	PublishLifecycle(ctx context.Context, event events.SessionLifecycle) error
}

// Config holds per-session pipeline settings.
type Config struct {
	Gate       audio.Config
	Supervisor asr.SupervisorConfig
	// Backend names the transport variant, recorded in snapshots.
	Backend string
	// WriteTimeout bounds each snapshot write and event publish.
	WriteTimeout time.Duration
}

// DefaultConfig returns pipeline settings for a live call.
func DefaultConfig() Config {
	return Config{
		Gate:         audio.DefaultConfig(),
		Supervisor:   asr.DefaultSupervisorConfig(),
		Backend:      asr.BackendSocket,
		WriteTimeout: 5 * time.Second,
	}
}

// Session is one call's transcription pipeline. Audio frames enter
// through Submit; recognized text leaves through the store and the
// event publisher. A recognition failure degrades the session to
// "no further recognition", it never fails the hosting call.
type Session struct {
	info   call.Info
	roster call.Roster
	cfg    Config
	log    zerolog.Logger

	sup  *asr.Supervisor
	gate *audio.Gate
	acc  *transcript.Accumulator

	store SnapshotStore
	pub   EventPublisher

	mu      sync.Mutex
	started bool
	stopped bool
	failed  bool

	// text mirrors the accumulator for readers outside the fold loop.
	textMu sync.RWMutex
	text   string

	wg       sync.WaitGroup
	inflight sync.WaitGroup

	metrics *metrics.Metrics
}

// New creates a session pipeline for one call. The store and publisher
// may be nil; persistence and events are then skipped.
func New(info call.Info, roster call.Roster, factory asr.Factory, cfg Config, st SnapshotStore, pub EventPublisher) *Session {
	s := &Session{
		info:    info,
		roster:  roster,
		cfg:     cfg,
		log:     logging.WithBackend(info.MeetingID, info.CallID, cfg.Backend),
		sup:     asr.NewSupervisor(cfg.Supervisor, factory),
		acc:     transcript.NewAccumulator(),
		store:   st,
		pub:     pub,
		metrics: metrics.DefaultMetrics,
	}
	s.gate = audio.New(cfg.Gate, s.sup)
	return s
}

// ID returns the session's store key component.
func (s *Session) ID() string {
	return s.info.SessionID()
}

// Info returns the call identity.
func (s *Session) Info() call.Info {
	return s.info
}

// Start connects the transport, opens the gate and begins folding
// recognition results. An exhausted first connect fails the start.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.sup.Start(ctx); err != nil {
		return err
	}
	s.gate.Start()

	s.wg.Add(1)
	go s.foldLoop()

	s.metrics.RecordSessionStart()
	s.publishLifecycle("started")
	s.log.Info().Str("backend", s.cfg.Backend).Msg("Session started")
	return nil
}

// Submit accepts one captured audio frame. It never blocks the caller.
func (s *Session) Submit(f call.Frame) error {
	return s.gate.Submit(f)
}

// ConnState returns the supervised connection's state.
func (s *Session) ConnState() asr.ConnState {
	return s.sup.State()
}

// Reconnect manually retries a Failed connection with a fresh
// transport instance.
func (s *Session) Reconnect(ctx context.Context) error {
	err := s.sup.Reconnect(ctx)
	if err == nil {
		s.mu.Lock()
		s.failed = false
		s.mu.Unlock()
	}
	return err
}

// Transcript returns the folded transcript so far.
func (s *Session) Transcript() string {
	s.textMu.RLock()
	defer s.textMu.RUnlock()
	return s.text
}

func (s *Session) setTranscript(text string) {
	s.textMu.Lock()
	s.text = text
	s.textMu.Unlock()
}

// Stop tears the pipeline down: the gate flushes its tail, the
// supervisor cancels its health poll, receive loop and transport, the
// fold loop drains, and a final snapshot is written. Each step runs
// even if a previous one failed.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	failed := s.failed
	s.mu.Unlock()

	s.gate.Stop()
	s.sup.Stop()
	s.wg.Wait()
	s.inflight.Wait()

	status := transcript.StatusFinished
	if failed {
		status = transcript.StatusFailed
	}
	if text := s.Transcript(); text != "" {
		s.writeSnapshot(text, status, false)
	}
	s.publishLifecycle(status)
	s.metrics.RecordSessionEnd()
	s.log.Info().Int("transcriptLen", len(s.Transcript())).Str("status", status).Msg("Session stopped")
}

// foldLoop is the single fold path: recognition results are folded in
// arrival order, one at a time, so the transcript has exactly one
// logical writer.
func (s *Session) foldLoop() {
	defer s.wg.Done()
	for r := range s.sup.Results() {
		if r.Err != nil {
			// Only terminal errors surface here; transient failures are
			// absorbed by the supervisor.
			s.mu.Lock()
			s.failed = true
			s.mu.Unlock()
			s.log.Error().Err(r.Err).Msg("Recognition permanently unavailable")
			s.publishLifecycle(transcript.StatusFailed)
			continue
		}
		if !r.Final {
			// Interim slices are provisional and never folded.
			continue
		}

		appended := s.acc.Fold(r.Text)
		text := s.acc.Text()
		s.setTranscript(text)
		s.metrics.RecordFold(len(appended), len(text))
		if appended == "" {
			continue
		}

		s.writeSnapshot(text, transcript.StatusActive, true)
		s.publishUpdate(appended, len(text))
	}
}

// writeSnapshot persists the current transcript. Asynchronous writes
// are fire-and-forget; ordering across overlapping writes is not
// guaranteed, which is safe because every write is a full overwrite
// derived from the same single-threaded accumulator.
func (s *Session) writeSnapshot(text, status string, async bool) {
	if s.store == nil {
		return
	}
	snap := transcript.Snapshot{
		SnapshotID: uuid.NewString(),
		SessionID:  s.ID(),
		CallID:     s.info.CallID,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
		Backend:    s.cfg.Backend,
	}
	if s.roster != nil {
		snap.Participants = s.roster.DisplayNames()
	}

	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		// Failures are logged by the store; the pipeline carries on.
		_ = s.store.SaveSnapshot(ctx, snap, status)
	}
	if !async {
		write()
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		write()
	}()
}

func (s *Session) publishUpdate(appended string, transcriptLen int) {
	if s.pub == nil {
		return
	}
	event := events.TranscriptUpdated{
		SessionID:     s.ID(),
		CallID:        s.info.CallID,
		Appended:      appended,
		TranscriptLen: transcriptLen,
		Backend:       s.cfg.Backend,
		Timestamp:     time.Now().UnixMilli(),
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		_ = s.pub.PublishUpdate(ctx, event)
	}()
}

func (s *Session) publishLifecycle(state string) {
	if s.pub == nil {
		return
	}
	event := events.SessionLifecycle{
		SessionID: s.ID(),
		CallID:    s.info.CallID,
		State:     state,
		Timestamp: time.Now().UnixMilli(),
	}
	if s.roster != nil {
		event.Participants = s.roster.DisplayNames()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	_ = s.pub.PublishLifecycle(ctx, event)
}
