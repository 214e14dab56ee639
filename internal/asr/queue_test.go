package asr

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSendQueue_OverflowDropsNewest(t *testing.T) {
	const capacity = 8
	q := newSendQueue(capacity)

	// Enqueue capacity+5 segments before any consumer runs.
	for i := 0; i < capacity+5; i++ {
		q.push([]byte(fmt.Sprintf("seg-%d", i)))
	}

	if got := q.dropCount(); got != 5 {
		t.Errorf("expected 5 dropped segments, got %d", got)
	}

	// The oldest capacity segments survive, in arrival order.
	for i := 0; i < capacity; i++ {
		seg, ok := q.pop()
		if !ok {
			t.Fatalf("queue ended early at segment %d", i)
		}
		want := fmt.Sprintf("seg-%d", i)
		if string(seg) != want {
			t.Errorf("segment %d = %q, want %q", i, seg, want)
		}
	}
}

func TestSendQueue_PushAfterCloseDropped(t *testing.T) {
	q := newSendQueue(4)
	q.close()

	if q.push([]byte("late")) {
		t.Error("push after close must report the segment dropped")
	}
}

func TestSendQueue_PopDrainsThenEnds(t *testing.T) {
	q := newSendQueue(4)
	q.push([]byte("a"))
	q.push([]byte("b"))
	q.close()

	if seg, ok := q.pop(); !ok || string(seg) != "a" {
		t.Fatalf("expected 'a', got %q ok=%v", seg, ok)
	}
	if seg, ok := q.pop(); !ok || string(seg) != "b" {
		t.Fatalf("expected 'b', got %q ok=%v", seg, ok)
	}
	if _, ok := q.pop(); ok {
		t.Error("expected end-of-stream after drain")
	}
}

func TestSendQueue_ReadUpTo(t *testing.T) {
	q := newSendQueue(4)
	q.push([]byte("abcdef"))
	q.push([]byte("gh"))
	q.close()

	// Small reads split one segment across calls and preserve order.
	var got bytes.Buffer
	buf := make([]byte, 4)
	for {
		n := q.readUpTo(buf)
		if n == 0 {
			break
		}
		got.Write(buf[:n])
	}

	if got.String() != "abcdefgh" {
		t.Errorf("expected 'abcdefgh', got %q", got.String())
	}
}

func TestSendQueue_ReadUpToZeroSignalsEOS(t *testing.T) {
	q := newSendQueue(4)
	q.close()

	if n := q.readUpTo(make([]byte, 16)); n != 0 {
		t.Errorf("expected 0 at end-of-stream, got %d", n)
	}
}
