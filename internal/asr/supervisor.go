package asr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
)

// ErrNoTransport is returned by SendAudio while no transport instance
// is live (mid-reconnect or after Failed). The segment is lost, which
// is the accepted real-time degradation.
var ErrNoTransport = errors.New("asr: no live transport")

// SupervisorConfig holds the reconnect policy and health polling
// settings.
type SupervisorConfig struct {
	// MaxAttempts is the reconnect ceiling per Reconnecting episode.
	MaxAttempts int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// HealthInterval is the period of the health poll while active.
	HealthInterval time.Duration
}

// DefaultSupervisorConfig returns the default reconnect policy.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxAttempts:    5,
		RetryDelay:     2 * time.Second,
		HealthInterval: 10 * time.Second,
	}
}

// Supervisor owns exactly one live transport for a session, restarts
// it on failure and exposes a stable result stream across reconnects.
// It implements the audio sink consumed by the gate.
type Supervisor struct {
	cfg     SupervisorConfig
	factory Factory
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	transport Transport

	state        atomic.Int32
	reconnecting atomic.Bool

	out       chan Result
	outMu     sync.RWMutex
	outClosed bool
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewSupervisor creates a supervisor building transports from factory.
func NewSupervisor(cfg SupervisorConfig, factory Factory) *Supervisor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultSupervisorConfig().MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultSupervisorConfig().RetryDelay
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultSupervisorConfig().HealthInterval
	}
	return &Supervisor{
		cfg:     cfg,
		factory: factory,
		log:     logging.WithComponent("asr-supervisor"),
		metrics: metrics.DefaultMetrics,
		out:     make(chan Result, 64),
		done:    make(chan struct{}),
	}
}

// Start establishes the first connection (with the full attempt
// budget) and launches the health poll. On exhausted attempts the
// supervisor is Failed and Start returns ErrRetriesExhausted.
func (s *Supervisor) Start(ctx context.Context) error {
	s.setState(StateConnecting)
	if err := s.establish(ctx, false); err != nil {
		s.setState(StateFailed)
		s.metrics.ConnectionsFailed.Inc()
		return err
	}
	s.setState(StateConnected)

	s.wg.Add(1)
	go s.healthLoop()
	return nil
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	return ConnState(s.state.Load())
}

// Results returns the stable inbound stream. Transport-level transient
// errors are absorbed by the reconnect machinery; ErrRetriesExhausted
// is delivered once when a connection fails terminally.
func (s *Supervisor) Results() <-chan Result {
	return s.out
}

// SendAudio forwards a voice segment to the current transport.
func (s *Supervisor) SendAudio(pcm []byte) error {
	t := s.current()
	if t == nil {
		return ErrNoTransport
	}
	return t.SendAudio(pcm)
}

// Reconnect is the explicit manual operation: it fully tears down the
// old transport and runs a fresh attempt budget. Valid from any state,
// including Failed, but not after Stop.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		return nil // a reconnect episode is already running
	}
	defer s.reconnecting.Store(false)

	s.setState(StateReconnecting)
	s.closeCurrent()
	if err := s.establish(ctx, true); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		s.setState(StateFailed)
		s.metrics.ConnectionsFailed.Inc()
		s.emit(Result{Err: ErrRetriesExhausted})
		return err
	}
	s.setState(StateConnected)
	return nil
}

// Stop cancels the health poll, tears down the receive loop and closes
// the transport, in that order, each step best-effort. The result
// channel is closed last.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.closeCurrent()
		s.wg.Wait()
		s.outMu.Lock()
		s.outClosed = true
		close(s.out)
		s.outMu.Unlock()
		s.setState(StateDisconnected)
	})
}

func (s *Supervisor) setState(st ConnState) {
	s.state.Store(int32(st))
}

func (s *Supervisor) current() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// swapIfRunning installs a fresh transport and registers its forward
// goroutine, unless Stop has begun. Sharing the transport mutex with
// closeCurrent means Stop either closes the new transport itself or
// refuses it here, never leaks it.
func (s *Supervisor) swapIfRunning(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.transport = t
	s.wg.Add(1)
	return true
}

func (s *Supervisor) closeCurrent() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()
	if t != nil {
		if err := t.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Transport close failed")
		}
	}
}

// establish runs up to MaxAttempts factory+connect cycles with the
// fixed delay between them. Each failed instance is fully closed
// before the next is constructed.
func (s *Supervisor) establish(ctx context.Context, isReconnect bool) error {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if isReconnect {
			s.metrics.ReconnectAttempts.Inc()
		}

		t, err := s.factory()
		if err == nil {
			err = t.Connect(ctx)
		}
		if err == nil {
			if !s.swapIfRunning(t) {
				_ = t.Close()
				return ErrClosed
			}
			go s.forward(t)
			s.log.Info().Int("attempt", attempt).Msg("Transport connected")
			return nil
		}
		if t != nil {
			_ = t.Close()
		}
		s.log.Warn().Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", s.cfg.MaxAttempts).
			Msg("Transport connect failed")

		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(s.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		}
	}
	return ErrRetriesExhausted
}

// forward relays one transport's results onto the stable stream. A
// transport-level error triggers an automatic reconnect episode; the
// loop ends when the transport's channel closes.
func (s *Supervisor) forward(t Transport) {
	defer s.wg.Done()
	for r := range t.Results() {
		if r.Err != nil {
			s.log.Warn().Err(r.Err).Msg("Transport failure reported")
			s.triggerReconnect()
			continue
		}
		s.emit(r)
	}
}

// healthLoop polls the transport on a fixed interval while the session
// is active, logging state and kicking off a reconnect when the
// transport reports disconnected.
func (s *Supervisor) healthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			state := s.State()
			t := s.current()
			connected := t != nil && t.Connected()
			s.log.Debug().
				Stringer("state", state).
				Bool("transportConnected", connected).
				Msg("Connection health")
			if state == StateConnected && !connected {
				s.triggerReconnect()
			}
		case <-s.done:
			return
		}
	}
}

// triggerReconnect starts one automatic reconnect episode unless the
// connection is already Failed, stopping, or an episode is running.
func (s *Supervisor) triggerReconnect() {
	select {
	case <-s.done:
		return
	default:
	}
	if s.State().IsTerminal() {
		return
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.reconnecting.Store(false)

		s.setState(StateReconnecting)
		s.closeCurrent()
		if err := s.establish(context.Background(), true); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			s.setState(StateFailed)
			s.metrics.ConnectionsFailed.Inc()
			s.log.Error().Err(err).Msg("Reconnect attempts exhausted, connection failed")
			s.emit(Result{Err: ErrRetriesExhausted})
			return
		}
		s.setState(StateConnected)
	}()
}

// emit delivers one result on the stable stream. Safe against Stop:
// the read lock holds off the channel close, and a closed done channel
// unblocks a full buffer.
func (s *Supervisor) emit(r Result) {
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	if s.outClosed {
		return
	}
	select {
	case s.out <- r:
	case <-s.done:
	}
}
