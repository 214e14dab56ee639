package asr

import "fmt"

// ConnState represents the lifecycle state of one supervised
// connection.
//
// State transitions:
//
//	DISCONNECTED → CONNECTING → CONNECTED
//	                    │            │
//	                    │            └── failure ──→ RECONNECTING
//	                    │                                │
//	                    └── attempts exhausted ──┐       ├── success ──→ CONNECTED
//	                                             ▼       ▼
//	                                           FAILED ←── attempts exhausted
//
// FAILED is terminal for that connection instance: automatic retries
// stop and only an explicit manual reconnect constructs a new one.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// IsTerminal returns true if no automatic transition can leave the
// state.
func (s ConnState) IsTerminal() bool {
	return s == StateFailed
}
