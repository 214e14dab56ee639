// Package asr provides the streaming transport layer between the audio
// gate and the recognition backends, plus the supervisor that keeps one
// transport alive per session.
package asr

import (
	"context"
	"errors"
)

// Errors shared by all transport variants.
var (
	// ErrQueueFull - the bounded send queue is full; the newest segment
	// was dropped so the audio producer never blocks.
	ErrQueueFull = errors.New("asr: send queue full, segment dropped")
	// ErrClosed - the transport was closed and accepts no more audio.
	ErrClosed = errors.New("asr: transport closed")
	// ErrRetriesExhausted - the supervisor hit its reconnect ceiling.
	// The connection is Failed; only a manual reconnect can recover.
	ErrRetriesExhausted = errors.New("asr: reconnect attempts exhausted")
)

// Result is one recognition outcome delivered on a transport's single
// inbound channel. Either Text or Err is set. Final marks authoritative
// slices; interim results must not be folded into the transcript.
type Result struct {
	Text        string
	Final       bool
	StartMs     int64
	EndMs       int64
	UtteranceID string
	Err         error
}

// Transport owns one backend connection's lifecycle and exposes
// audio-in and text-out as independent flows.
//
// Connect is idempotent. SendAudio never blocks: audio submitted before
// a successful Connect is buffered in a bounded queue, and once the
// queue is full new segments are dropped with ErrQueueFull. Close
// releases all backend resources on every exit path, including a
// transport that never fully connected.
type Transport interface {
	Connect(ctx context.Context) error
	SendAudio(pcm []byte) error
	Results() <-chan Result
	Connected() bool
	Close() error
}

// Factory constructs a fresh transport. The supervisor calls it once
// per connection instance; a Failed instance is never reused.
type Factory func() (Transport, error)

// Backend names used in config, logs and metric labels.
const (
	BackendSocket     = "socket"
	BackendController = "controller"
	BackendGoogle     = "google"
	BackendMock       = "mock"
)
