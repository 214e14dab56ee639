// Package google adapts Google Cloud Speech-to-Text streaming
// recognition to the transport capability set.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"call-transcription-bot/internal/asr"
	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
)

// Config holds settings for the Google streaming backend.
// Requires GOOGLE_APPLICATION_CREDENTIALS in the environment.
type Config struct {
	SampleRate     int
	LanguageCode   string
	Encoding       string
	InterimResults bool
	// QueueDepth bounds the audio send queue in segments.
	QueueDepth int
}

// DefaultConfig matches the audio the gate produces.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		LanguageCode:   "en-US",
		Encoding:       "LINEAR16",
		InterimResults: true,
		QueueDepth:     32,
	}
}

// parseEncoding maps the config string onto the protobuf enum, falling
// back to LINEAR16 for anything unrecognized.
func parseEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Transport streams voice segments over one StreamingRecognize session.
type Transport struct {
	cfg Config
	log zerolog.Logger

	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient

	audio   chan []byte
	results chan asr.Result
	dropped atomic.Uint64

	mu        sync.Mutex
	started   bool
	connected atomic.Bool
	closed    atomic.Bool

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	metrics *metrics.Metrics
}

var _ asr.Transport = (*Transport)(nil)

// New creates a Google transport. Audio may be submitted before
// Connect; it is buffered up to QueueDepth segments.
func New(cfg Config) *Transport {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	return &Transport{
		cfg:     cfg,
		log:     logging.WithComponent("asr-google"),
		audio:   make(chan []byte, cfg.QueueDepth),
		results: make(chan asr.Result, 64),
		stop:    make(chan struct{}),
		metrics: metrics.DefaultMetrics,
	}
}

// Connect opens the client, starts the recognition stream and sends the
// streaming config as the first request. Idempotent while connected.
func (t *Transport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return asr.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	t.metrics.ConnectsTotal.WithLabelValues(asr.BackendGoogle).Inc()
	client, err := speech.NewClient(ctx)
	if err != nil {
		t.metrics.ConnectFailures.WithLabelValues(asr.BackendGoogle).Inc()
		return fmt.Errorf("asr: google client: %w", err)
	}

	// The stream must outlive the dial context.
	stream, err := client.StreamingRecognize(context.Background())
	if err != nil {
		_ = client.Close()
		t.metrics.ConnectFailures.WithLabelValues(asr.BackendGoogle).Inc()
		return fmt.Errorf("asr: google stream: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseEncoding(t.cfg.Encoding),
					SampleRateHertz: int32(t.cfg.SampleRate),
					LanguageCode:    t.cfg.LanguageCode,
				},
				InterimResults: t.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		_ = client.Close()
		t.metrics.ConnectFailures.WithLabelValues(asr.BackendGoogle).Inc()
		return fmt.Errorf("asr: google streaming config: %w", err)
	}

	t.client = client
	t.stream = stream
	t.started = true
	t.connected.Store(true)
	t.log.Info().Str("language", t.cfg.LanguageCode).Int("sample_rate", t.cfg.SampleRate).
		Msg("Google recognition stream started")

	t.wg.Add(2)
	go t.writeLoop()
	go t.readLoop()
	return nil
}

// SendAudio enqueues one voice segment. Never blocks; the newest
// segment is dropped with ErrQueueFull when the queue is saturated.
func (t *Transport) SendAudio(pcm []byte) error {
	if t.closed.Load() {
		return asr.ErrClosed
	}
	select {
	case t.audio <- pcm:
		t.metrics.AudioEnqueued.Inc()
		return nil
	default:
		t.dropped.Add(1)
		t.metrics.AudioDropped.WithLabelValues(asr.BackendGoogle).Inc()
		return asr.ErrQueueFull
	}
}

// Results returns the inbound event channel. It is closed by Close.
func (t *Transport) Results() <-chan asr.Result {
	return t.results
}

// Connected reports whether the recognition stream is live.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Close half-closes the stream, drains the receive side and releases
// the client. Idempotent, safe on a transport that never connected.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.connected.Store(false)
		close(t.stop)

		t.mu.Lock()
		stream := t.stream
		client := t.client
		t.mu.Unlock()

		if stream != nil {
			_ = stream.CloseSend()
		}
		t.wg.Wait()
		if client != nil {
			_ = client.Close()
		}
		close(t.results)
	})
	return nil
}

// Dropped returns how many segments the send queue discarded.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case seg := <-t.audio:
			err := t.stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: seg,
				},
			})
			if err != nil {
				// The real status arrives on the receive side.
				if !errors.Is(err, io.EOF) {
					t.log.Warn().Err(err).Msg("Audio send failed")
				}
				return
			}
		case <-t.stop:
			return
		}
	}
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		resp, err := t.stream.Recv()
		if err != nil {
			t.connected.Store(false)
			if !t.closed.Load() && !errors.Is(err, io.EOF) {
				t.emit(asr.Result{Err: classifyStreamError(err)})
			}
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			t.metrics.EventsReceived.WithLabelValues(asr.BackendGoogle).Inc()
			t.emit(asr.Result{Text: alt.Transcript, Final: r.IsFinal})
		}
	}
}

func (t *Transport) emit(r asr.Result) {
	select {
	case t.results <- r:
	case <-t.stop:
	}
}

// classifyStreamError maps gRPC statuses onto transport errors. Every
// non-clean termination is reconnectable; the status code is kept in
// the message for the logs.
func classifyStreamError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("asr: google stream: %w", err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return fmt.Errorf("asr: google stream transient (%s): %w", st.Code(), err)
	case codes.OutOfRange:
		// Google ends long streams with OUT_OF_RANGE; treat as a
		// normal rotation point.
		return fmt.Errorf("asr: google stream rotated (%s): %w", st.Code(), err)
	default:
		return fmt.Errorf("asr: google stream (%s): %w", st.Code(), err)
	}
}
