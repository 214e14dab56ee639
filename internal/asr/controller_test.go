package asr

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeController drains the read callback in its own goroutine and
// records every byte pulled, like a vendor SDK streaming session.
type fakeController struct {
	startErr error
	onMsg    func(payload []byte)

	mu      sync.Mutex
	pulled  bytes.Buffer
	stopped bool
	eos     chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{eos: make(chan struct{})}
}

func (f *fakeController) Start(ctx context.Context, read func(p []byte) int, onMessage func(payload []byte)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.onMsg = onMessage
	go func() {
		buf := make([]byte, 4)
		for {
			n := read(buf)
			if n == 0 {
				close(f.eos)
				return
			}
			f.mu.Lock()
			f.pulled.Write(buf[:n])
			f.mu.Unlock()
		}
	}()
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeController) pulledBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.pulled.Bytes()...)
}

func TestController_StartFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = errors.New("backend unavailable")
	c := NewController(ctrl, ControllerConfig{QueueDepth: 4})
	defer c.Close()

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect failure")
	}
	if c.Connected() {
		t.Error("failed session must not report connected")
	}
}

func TestController_BackendPullsInOrder(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 8})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	c.SendAudio([]byte("abcd"))
	c.SendAudio([]byte("efgh"))
	c.SendAudio([]byte("ij"))

	want := []byte("abcdefghij")
	deadline := time.After(2 * time.Second)
	for !bytes.Equal(ctrl.pulledBytes(), want) {
		select {
		case <-deadline:
			t.Fatalf("pulled %q, want %q", ctrl.pulledBytes(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestController_PreConnectAudioPulledAfterStart(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 8})
	defer c.Close()

	if err := c.SendAudio([]byte("wxyz")); err != nil {
		t.Fatalf("pre-connect send failed: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !bytes.Equal(ctrl.pulledBytes(), []byte("wxyz")) {
		select {
		case <-deadline:
			t.Fatalf("pre-connect audio never pulled, got %q", ctrl.pulledBytes())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestController_MessagesBecomeResults(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 4})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ctrl.onMsg([]byte(`{"result":{"slice_type":2,"voice_text_str":"over and out"}}`))

	select {
	case r := <-c.Results():
		if !r.Final || r.Text != "over and out" {
			t.Errorf("unexpected result %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("message never surfaced as result")
	}
}

func TestController_MalformedMessageDiscarded(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 4})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ctrl.onMsg([]byte(`{{{`))
	ctrl.onMsg([]byte(`{"text":"good"}`))

	select {
	case r := <-c.Results():
		if r.Text != "good" {
			t.Errorf("expected the valid event only, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("valid event never delivered")
	}
}

func TestController_CloseSignalsEndOfStream(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 4})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	c.SendAudio([]byte("tail"))

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The backend drains the queued tail, then sees end-of-stream.
	select {
	case <-ctrl.eos:
	case <-time.After(2 * time.Second):
		t.Fatal("read callback never returned end-of-stream")
	}
	if !bytes.Equal(ctrl.pulledBytes(), []byte("tail")) {
		t.Errorf("queued audio lost on close, pulled %q", ctrl.pulledBytes())
	}

	ctrl.mu.Lock()
	stopped := ctrl.stopped
	ctrl.mu.Unlock()
	if !stopped {
		t.Error("controller Stop was not invoked")
	}
	if err := c.SendAudio([]byte("late")); err != ErrClosed {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestController_LateMessagesAroundCloseDiscarded(t *testing.T) {
	ctrl := newFakeController()
	c := NewController(ctrl, ControllerConfig{QueueDepth: 4})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	c.SendAudio([]byte("tail"))

	// The backend keeps delivering results for the drained tail while
	// the transport tears down.
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		for i := 0; i < 100; i++ {
			ctrl.onMsg([]byte(`{"result":{"slice_type":2,"voice_text_str":"tail words"}}`))
		}
	}()

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	<-delivered

	// A straggler strictly after Close must be dropped, not panic.
	ctrl.onMsg([]byte(`{"result":{"slice_type":2,"voice_text_str":"straggler"}}`))

	for range c.Results() {
	}
}
