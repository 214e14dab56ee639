// Package call defines the contract between the bot and the hosting
// calling platform. The platform owns call lifecycle, audio capture and
// the participant roster; the bot only consumes them through these types.
package call

import "time"

// Frame is one chunk of captured audio: raw PCM16 mono samples at a
// fixed sample rate. Frames are produced by the call layer and consumed
// immediately; they are never persisted.
type Frame struct {
	// PCM holds little-endian 16-bit samples. The byte length must be a
	// whole number of samples.
	PCM        []byte
	SampleRate int
	CapturedAt time.Time
}

// Samples returns the number of 16-bit samples in the frame.
func (f Frame) Samples() int {
	return len(f.PCM) / 2
}

// State represents the lifecycle state of the hosted call as reported
// by the calling platform.
type State int

const (
	StateIdle State = iota
	// StateEstablishing - call is being set up, no media yet.
	StateEstablishing
	// StateActive - media is flowing, transcription should run.
	StateActive
	// StateTerminated - call ended, transcription must flush and stop.
	StateTerminated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateEstablishing:
		return "ESTABLISHING"
	case StateActive:
		return "ACTIVE"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Info identifies one hosted call.
type Info struct {
	MeetingID string
	CallID    string
}

// SessionID returns the store key component identifying this call's
// transcription session.
func (i Info) SessionID() string {
	return i.MeetingID + "-" + i.CallID
}

// Roster exposes the current participant display names. Used only to
// annotate stored transcripts, never for control flow.
type Roster interface {
	DisplayNames() []string
}

// StaticRoster is a fixed participant list, useful when the platform
// delivers the roster once at call setup.
type StaticRoster []string

// DisplayNames returns the fixed participant list.
func (r StaticRoster) DisplayNames() []string {
	return []string(r)
}
