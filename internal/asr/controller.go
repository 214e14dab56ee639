package asr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
)

// Controller is the vendor streaming-controller surface: the backend
// pulls audio through the read callback (a return of 0 signals
// end-of-stream) and pushes recognized JSON payloads through the
// message callback. Start begins the session; Stop signals end-of-
// stream from the caller side. Implementations live in the vendor SDK.
type Controller interface {
	Start(ctx context.Context, read func(p []byte) int, onMessage func(payload []byte)) error
	Stop() error
}

// ControllerConfig holds settings for the controller-backed transport.
type ControllerConfig struct {
	// QueueDepth bounds the audio send queue in segments.
	QueueDepth int
}

// ControllerTransport adapts a vendor streaming controller to the
// Transport capability set. SendAudio feeds the bounded queue that the
// backend's read callback drains.
type ControllerTransport struct {
	ctrl Controller
	cfg  ControllerConfig
	log  zerolog.Logger

	queue   *sendQueue
	results chan Result

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	connected atomic.Bool
	closed    atomic.Bool

	// cbMu gates onMessage against Close: the backend may deliver the
	// final result for the drained tail around Stop, and the results
	// channel must not close under it.
	cbMu sync.RWMutex

	closeOnce sync.Once
	stop      chan struct{}

	metrics *metrics.Metrics
}

var _ Transport = (*ControllerTransport)(nil)

// NewController wraps a vendor controller in a Transport.
func NewController(ctrl Controller, cfg ControllerConfig) *ControllerTransport {
	return &ControllerTransport{
		ctrl:    ctrl,
		cfg:     cfg,
		log:     logging.WithComponent("asr-controller"),
		queue:   newSendQueue(cfg.QueueDepth),
		results: make(chan Result, 64),
		stop:    make(chan struct{}),
		metrics: metrics.DefaultMetrics,
	}
}

// Connect starts the backend session. Idempotent while connected.
func (c *ControllerTransport) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	c.metrics.ConnectsTotal.WithLabelValues(BackendController).Inc()
	runCtx, cancel := context.WithCancel(context.Background())
	if err := c.ctrl.Start(runCtx, c.queue.readUpTo, c.onMessage); err != nil {
		cancel()
		c.metrics.ConnectFailures.WithLabelValues(BackendController).Inc()
		return fmt.Errorf("asr: controller start: %w", err)
	}
	c.cancel = cancel
	c.started = true
	c.connected.Store(true)
	c.log.Info().Msg("Recognition controller session started")
	return nil
}

// SendAudio enqueues one voice segment for the backend to pull. Never
// blocks; the newest segment is dropped with ErrQueueFull on overflow.
func (c *ControllerTransport) SendAudio(pcm []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.queue.push(pcm) {
		c.metrics.AudioDropped.WithLabelValues(BackendController).Inc()
		return ErrQueueFull
	}
	c.metrics.AudioEnqueued.Inc()
	return nil
}

// Results returns the inbound event channel. It is closed by Close.
func (c *ControllerTransport) Results() <-chan Result {
	return c.results
}

// Connected reports whether the backend session is live.
func (c *ControllerTransport) Connected() bool {
	return c.connected.Load()
}

// Close signals end-of-stream to the backend (the read callback
// returns 0 once the queue drains), stops the session and releases all
// resources. Idempotent, safe on a transport that never connected.
func (c *ControllerTransport) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.connected.Store(false)
		close(c.stop)
		c.queue.close()

		c.mu.Lock()
		started := c.started
		cancel := c.cancel
		c.mu.Unlock()

		if started {
			if stopErr := c.ctrl.Stop(); stopErr != nil {
				c.log.Warn().Err(stopErr).Msg("Controller stop failed")
				err = stopErr
			}
		}
		if cancel != nil {
			cancel()
		}
		// Wait out callbacks already inside onMessage, then close the
		// stream. Later callbacks see the closed flag and return.
		c.cbMu.Lock()
		close(c.results)
		c.cbMu.Unlock()
	})
	return err
}

// Dropped returns how many segments the send queue discarded.
func (c *ControllerTransport) Dropped() uint64 {
	return c.queue.dropCount()
}

// onMessage is invoked by the backend per recognized payload. Messages
// arriving after Close are discarded.
func (c *ControllerTransport) onMessage(payload []byte) {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	if c.closed.Load() {
		return
	}
	r, ok, err := parseEvent(payload)
	if err != nil {
		c.metrics.ProtocolErrors.WithLabelValues(BackendController).Inc()
		c.log.Warn().Err(err).Msg("Discarded backend event")
		return
	}
	if !ok {
		return
	}
	c.metrics.EventsReceived.WithLabelValues(BackendController).Inc()
	select {
	case c.results <- r:
	case <-c.stop:
	}
}
