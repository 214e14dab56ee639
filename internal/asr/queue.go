package asr

import (
	"sync/atomic"
)

// sendQueue is the single bounded FIFO connecting the audio producer to
// a backend consumer. Exactly one consumer drains it; producers never
// block: when the queue is full the incoming (newest) segment is
// dropped and counted, preserving real-time delivery over completeness.
type sendQueue struct {
	ch      chan []byte
	done    chan struct{}
	dropped atomic.Uint64

	// pending holds the consumer-side remainder of a partially read
	// segment. Only the single consumer touches it.
	pending []byte
}

func newSendQueue(depth int) *sendQueue {
	if depth <= 0 {
		depth = 32
	}
	return &sendQueue{
		ch:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

// push enqueues one segment without blocking. Returns false when the
// segment was dropped (queue full or closed).
func (q *sendQueue) push(seg []byte) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- seg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// pop blocks until a segment is available or the queue is closed and
// drained. The second return is false at end-of-stream.
func (q *sendQueue) pop() ([]byte, bool) {
	select {
	case seg := <-q.ch:
		return seg, true
	case <-q.done:
		// Drain what was enqueued before close.
		select {
		case seg := <-q.ch:
			return seg, true
		default:
			return nil, false
		}
	}
}

// readUpTo fills p with queued audio, blocking until at least one byte
// is available. A return of 0 signals end-of-stream to the backend's
// read loop.
func (q *sendQueue) readUpTo(p []byte) int {
	for len(q.pending) == 0 {
		seg, ok := q.pop()
		if !ok {
			return 0
		}
		q.pending = seg
	}
	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n
}

// close signals end-of-stream. Already queued segments remain readable.
// Safe to call once; callers guard with their own once.
func (q *sendQueue) close() {
	close(q.done)
}

// dropCount returns how many segments were dropped on overflow.
func (q *sendQueue) dropCount() uint64 {
	return q.dropped.Load()
}

// depth returns the number of segments currently queued.
func (q *sendQueue) depth() int {
	return len(q.ch)
}
