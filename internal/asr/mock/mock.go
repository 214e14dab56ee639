// Package mock provides a recognition transport that needs no backend.
// It plays scripted utterances back as progressive interim results with
// exactly one final result per utterance, which makes it usable both in
// tests and for end-to-end dry runs without cloud credentials.
package mock

import (
	"context"
	"sync"
	"time"

	"call-transcription-bot/internal/asr"
)

// Utterance is one scripted recognition sequence. Partials are emitted
// one per submitted segment; Final follows once the partials run out.
type Utterance struct {
	Partials []string
	Final    string
}

// DefaultUtterances is a plausible meeting exchange. Each partial is a
// prefix of its final, the same shape a streaming recognizer produces.
var DefaultUtterances = []Utterance{
	{
		Partials: []string{"good morning", "good morning everyone let's"},
		Final:    "good morning everyone let's get started",
	},
	{
		Partials: []string{"the quarterly", "the quarterly numbers look"},
		Final:    "the quarterly numbers look strong",
	},
	{
		Partials: []string{"can someone", "can someone share the"},
		Final:    "can someone share the dashboard",
	},
	{
		Partials: []string{"I'll follow", "I'll follow up after"},
		Final:    "I'll follow up after the call",
	},
	{
		Partials: []string{"thanks", "thanks everyone see"},
		Final:    "thanks everyone see you next week",
	},
}

// Config controls playback.
type Config struct {
	// Utterances overrides the default script.
	Utterances []Utterance
	// Latency delays each emitted result, zero means synchronous.
	Latency time.Duration
	// ConnectErr makes Connect fail, for supervisor tests.
	ConnectErr error
}

// Transport implements the transport capability set against the script.
type Transport struct {
	cfg Config

	mu        sync.Mutex
	connected bool
	closed    bool
	uttIndex  int
	partIndex int

	pending chan asr.Result
	results chan asr.Result
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ asr.Transport = (*Transport)(nil)

// New creates a mock transport playing cfg.Utterances, or the default
// script when none are given.
func New(cfg Config) *Transport {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	t := &Transport{
		cfg:     cfg,
		pending: make(chan asr.Result, 256),
		results: make(chan asr.Result, 64),
		stop:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.play()
	return t
}

// play forwards scripted results in submission order, applying the
// configured latency. On stop it drains whatever is still pending.
func (t *Transport) play() {
	defer t.wg.Done()
	for {
		select {
		case r := <-t.pending:
			if t.cfg.Latency > 0 {
				select {
				case <-time.After(t.cfg.Latency):
				case <-t.stop:
				}
			}
			select {
			case t.results <- r:
			default:
			}
		case <-t.stop:
			for {
				select {
				case r := <-t.pending:
					select {
					case t.results <- r:
					default:
					}
				default:
					return
				}
			}
		}
	}
}

// Connect marks the transport live. Idempotent.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return asr.ErrClosed
	}
	if t.cfg.ConnectErr != nil {
		return t.cfg.ConnectErr
	}
	t.connected = true
	return nil
}

// SendAudio advances the script by one step. Each segment yields the
// next partial; once the utterance's partials are exhausted the final
// is emitted and the script moves to the next utterance.
func (t *Transport) SendAudio(pcm []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return asr.ErrClosed
	}
	if !t.connected || t.uttIndex >= len(t.cfg.Utterances) {
		t.mu.Unlock()
		return nil
	}

	utt := t.cfg.Utterances[t.uttIndex]
	var r asr.Result
	if t.partIndex < len(utt.Partials) {
		r = asr.Result{Text: utt.Partials[t.partIndex]}
		t.partIndex++
	} else {
		r = asr.Result{Text: utt.Final, Final: true}
		t.uttIndex++
		t.partIndex = 0
	}
	t.mu.Unlock()

	select {
	case t.pending <- r:
	default:
	}
	return nil
}

// Results returns the playback channel. It is closed by Close.
func (t *Transport) Results() <-chan asr.Result {
	return t.results
}

// Connected reports whether Connect succeeded and Close has not run.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

// Close flushes the final of a half-played utterance, then shuts the
// playback down. Idempotent.
func (t *Transport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		var tail *asr.Result
		if t.connected && t.partIndex > 0 && t.uttIndex < len(t.cfg.Utterances) {
			tail = &asr.Result{Text: t.cfg.Utterances[t.uttIndex].Final, Final: true}
		}
		t.closed = true
		t.connected = false
		t.mu.Unlock()

		if tail != nil {
			select {
			case t.pending <- *tail:
			default:
			}
		}
		close(t.stop)
		t.wg.Wait()
		close(t.results)
	})
	return nil
}
