// Package audio provides the voice-activity gate that sits between the
// call layer's raw frame callback and the streaming transport. It
// classifies frames by energy, accumulates voice-active samples and
// flushes them to a sink on a fixed wall-clock interval.
package audio

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"call-transcription-bot/internal/call"
	"call-transcription-bot/internal/observability/logging"
	"call-transcription-bot/internal/observability/metrics"
)

// ErrBadFrame is returned when a frame's byte length is not a whole
// number of 16-bit samples. The frame is dropped; the buffer is untouched.
var ErrBadFrame = errors.New("audio: frame length is not a whole number of samples")

// Sink receives flushed voice segments. Ownership of the byte slice
// transfers to the sink; the gate never reuses it.
type Sink interface {
	SendAudio(pcm []byte) error
}

// Config holds gate tuning parameters.
type Config struct {
	// VoiceThreshold is the normalized RMS level above which a frame is
	// classified as voice-active. Range (0,1).
	VoiceThreshold float64
	// SilenceHangover is the number of consecutive silent frames after
	// which the gate drops out of the voice-active state. Frames inside
	// the hangover window are still buffered so word tails survive.
	SilenceHangover int
	// FlushInterval is the wall-clock period between buffer flushes,
	// independent of frame arrival.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible gate defaults for 16 kHz call audio
// delivered in 20 ms frames.
func DefaultConfig() Config {
	return Config{
		VoiceThreshold:  0.015,
		SilenceHangover: 25, // ~500ms of 20ms frames
		FlushInterval:   2 * time.Second,
	}
}

// Gate accumulates voice-active audio and flushes it periodically.
// Submit never blocks the audio producer.
type Gate struct {
	cfg  Config
	sink Sink
	log  zerolog.Logger

	mu          sync.Mutex
	buf         []byte
	voiceActive bool
	silenceRun  int

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	metrics *metrics.Metrics
}

// New creates a gate flushing into sink. Call Start to begin the flush
// loop and Stop to flush the tail and release it.
func New(cfg Config, sink Sink) *Gate {
	if cfg.VoiceThreshold <= 0 {
		cfg.VoiceThreshold = DefaultConfig().VoiceThreshold
	}
	if cfg.SilenceHangover <= 0 {
		cfg.SilenceHangover = DefaultConfig().SilenceHangover
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Gate{
		cfg:     cfg,
		sink:    sink,
		log:     logging.WithComponent("audio-gate"),
		done:    make(chan struct{}),
		metrics: metrics.DefaultMetrics,
	}
}

// Start launches the periodic flush loop.
func (g *Gate) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Flush()
			case <-g.done:
				return
			}
		}
	}()
}

// Stop ends the flush loop and flushes whatever is buffered. Idempotent.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
	})
	g.wg.Wait()
	g.Flush()
}

// Submit classifies one frame and buffers its samples if the gate is in
// an utterance (voice-active or within the trailing silence window).
// It never blocks and never panics into the producer.
func (g *Gate) Submit(f call.Frame) error {
	if len(f.PCM)%2 != 0 {
		g.metrics.RecordFrame(false, true)
		g.log.Warn().Int("bytes", len(f.PCM)).Msg("Rejected malformed audio frame")
		return ErrBadFrame
	}

	level := rmsLevel(f.PCM)
	voice := level >= g.cfg.VoiceThreshold
	g.metrics.RecordFrame(voice, false)

	g.mu.Lock()
	defer g.mu.Unlock()

	if voice {
		g.silenceRun = 0
		g.voiceActive = true
		g.buf = append(g.buf, f.PCM...)
		return nil
	}
	if !g.voiceActive {
		return nil
	}
	// Silent frame inside the hangover window: keep it so trailing word
	// fragments are not cut off.
	g.buf = append(g.buf, f.PCM...)
	g.silenceRun++
	if g.silenceRun >= g.cfg.SilenceHangover {
		g.voiceActive = false
		g.silenceRun = 0
	}
	return nil
}

// Flush hands the accumulated segment to the sink and clears the buffer.
// An empty buffer flush is a no-op.
func (g *Gate) Flush() {
	g.mu.Lock()
	seg := g.buf
	g.buf = nil
	g.mu.Unlock()

	if len(seg) == 0 {
		return
	}
	g.metrics.RecordSegmentFlush(len(seg))
	if err := g.sink.SendAudio(seg); err != nil {
		// The transport owns delivery; a send failure here means the
		// segment is lost, which is the accepted degradation.
		g.log.Warn().Err(err).Int("bytes", len(seg)).Msg("Voice segment not accepted by transport")
	}
}

// Buffered returns the number of bytes currently accumulated.
func (g *Gate) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buf)
}

// VoiceActive reports whether the gate currently considers the stream
// to be inside an utterance.
func (g *Gate) VoiceActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.voiceActive
}

// rmsLevel computes the root-mean-square energy of little-endian PCM16
// samples, normalized to [0,1] by the maximum sample magnitude.
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var energy float64
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy/float64(n)) / 32768.0
}
