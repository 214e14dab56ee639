package asr

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
)

// SocketConfig holds settings for the generic full-duplex socket
// backend.
type SocketConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Header carries authentication for the handshake.
	Header http.Header
	// QueueDepth bounds the audio send queue in segments.
	QueueDepth int
	// HandshakeTimeout limits the websocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout limits each outbound binary frame write.
	WriteTimeout time.Duration
}

// Socket streams audio to a recognition endpoint over one persistent
// websocket. Outbound frames are raw PCM16 big-endian binary; inbound
// messages are UTF-8 JSON recognition events.
type Socket struct {
	cfg SocketConfig
	log zerolog.Logger

	queue   *sendQueue
	results chan Result

	mu        sync.Mutex
	conn      *websocket.Conn
	started   bool
	connected atomic.Bool
	closed    atomic.Bool

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	metrics *metrics.Metrics
}

var _ Transport = (*Socket)(nil)

// NewSocket creates a socket transport. Audio may be submitted before
// Connect; it is buffered up to QueueDepth segments.
func NewSocket(cfg SocketConfig) *Socket {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Socket{
		cfg:     cfg,
		log:     logging.WithComponent("asr-socket"),
		queue:   newSendQueue(cfg.QueueDepth),
		results: make(chan Result, 64),
		stop:    make(chan struct{}),
		metrics: metrics.DefaultMetrics,
	}
}

// Connect dials the endpoint and starts the send and receive loops.
// Calling Connect while already connected is a no-op.
func (s *Socket) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.metrics.ConnectsTotal.WithLabelValues(BackendSocket).Inc()
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		s.metrics.ConnectFailures.WithLabelValues(BackendSocket).Inc()
		if resp != nil {
			return fmt.Errorf("asr: websocket dial %s: status %d: %w", s.cfg.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("asr: websocket dial %s: %w", s.cfg.URL, err)
	}

	s.conn = conn
	s.started = true
	s.connected.Store(true)
	s.log.Info().Str("url", s.cfg.URL).Msg("Recognition socket connected")

	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()
	return nil
}

// SendAudio enqueues one voice segment. Never blocks; the newest
// segment is dropped with ErrQueueFull when the queue is saturated.
func (s *Socket) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.queue.push(pcm) {
		s.metrics.AudioDropped.WithLabelValues(BackendSocket).Inc()
		return ErrQueueFull
	}
	s.metrics.AudioEnqueued.Inc()
	return nil
}

// Results returns the inbound event channel. It is closed by Close.
func (s *Socket) Results() <-chan Result {
	return s.results
}

// Connected reports whether the socket is currently live.
func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Close tears the connection down and releases every resource, even if
// Connect never succeeded. Idempotent.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.connected.Store(false)
		close(s.stop)
		s.queue.close()

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}

		s.wg.Wait()
		close(s.results)
	})
	return nil
}

// Dropped returns how many segments the send queue discarded.
func (s *Socket) Dropped() uint64 {
	return s.queue.dropCount()
}

// QueueDepth returns the number of segments waiting to be sent.
func (s *Socket) QueueDepth() int {
	return s.queue.depth()
}

func (s *Socket) writeLoop() {
	defer s.wg.Done()
	for {
		seg, ok := s.queue.pop()
		if !ok {
			return
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, pcmToBigEndian(seg)); err != nil {
			s.connected.Store(false)
			s.emit(Result{Err: fmt.Errorf("asr: websocket write: %w", err)})
			return
		}
	}
}

func (s *Socket) readLoop() {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.connected.Store(false)
			if !s.closed.Load() {
				s.emit(Result{Err: fmt.Errorf("asr: websocket read: %w", err)})
			}
			return
		}

		r, ok, err := parseEvent(data)
		if err != nil {
			// Protocol error: the event is discarded, the connection
			// stays up.
			s.metrics.ProtocolErrors.WithLabelValues(BackendSocket).Inc()
			s.log.Warn().Err(err).Msg("Discarded backend event")
			continue
		}
		if !ok {
			continue
		}
		s.metrics.EventsReceived.WithLabelValues(BackendSocket).Inc()
		s.emit(r)
	}
}

// emit delivers a result unless the transport is shutting down.
func (s *Socket) emit(r Result) {
	select {
	case s.results <- r:
	case <-s.stop:
	}
}

// pcmToBigEndian converts little-endian PCM16 to the big-endian byte
// order the socket protocol expects.
func pcmToBigEndian(pcm []byte) []byte {
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		out[i], out[i+1] = pcm[i+1], pcm[i]
	}
	return out
}
