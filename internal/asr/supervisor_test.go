package asr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTransport is a scripted transport for supervisor tests.
type fakeTransport struct {
	connectErr error

	mu        sync.Mutex
	audio     [][]byte
	connected bool
	closed    bool

	results   chan Result
	closeOnce sync.Once
}

func newFakeTransport(connectErr error) *fakeTransport {
	return &fakeTransport{
		connectErr: connectErr,
		results:    make(chan Result, 16),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.audio = append(f.audio, pcm)
	return nil
}

func (f *fakeTransport) Results() <-chan Result { return f.results }

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.results) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func fastConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxAttempts:    3,
		RetryDelay:     5 * time.Millisecond,
		HealthInterval: 10 * time.Millisecond,
	}
}

func TestSupervisor_StartSuccess(t *testing.T) {
	ft := newFakeTransport(nil)
	s := NewSupervisor(fastConfig(), func() (Transport, error) { return ft, nil })
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("expected CONNECTED, got %v", s.State())
	}

	if err := s.SendAudio([]byte("pcm")); err != nil {
		t.Errorf("unexpected send error: %v", err)
	}
}

func TestSupervisor_FailsAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		attempts.Add(1)
		return newFakeTransport(errors.New("connection refused")), nil
	})
	defer s.Stop()

	err := s.Start(context.Background())

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("expected FAILED, got %v", s.State())
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}

	// Failed is terminal: no further automatic attempts may happen.
	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Errorf("automatic retries continued after FAILED: %d attempts", got)
	}
}

func TestSupervisor_ForwardsResults(t *testing.T) {
	ft := newFakeTransport(nil)
	s := NewSupervisor(fastConfig(), func() (Transport, error) { return ft, nil })
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ft.results <- Result{Text: "hello", Final: true}

	select {
	case r := <-s.Results():
		if r.Text != "hello" || !r.Final {
			t.Errorf("unexpected result %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("result not forwarded")
	}
}

func TestSupervisor_ReconnectsOnTransportError(t *testing.T) {
	var built atomic.Int32
	transports := make(chan *fakeTransport, 4)
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		built.Add(1)
		ft := newFakeTransport(nil)
		transports <- ft
		return ft, nil
	})
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-transports

	// Report a receive-loop failure.
	first.results <- Result{Err: errors.New("abnormal closure")}

	// A replacement transport must come up and the old one must be
	// fully closed first.
	select {
	case second := <-transports:
		deadline := time.After(time.Second)
		for s.State() != StateConnected {
			select {
			case <-deadline:
				t.Fatalf("never reconnected, state %v", s.State())
			case <-time.After(5 * time.Millisecond):
			}
		}
		if !first.isClosed() {
			t.Error("old transport not closed before replacement")
		}
		if second == first {
			t.Error("transport instance was reused after failure")
		}
	case <-time.After(time.Second):
		t.Fatalf("no reconnect happened, built=%d", built.Load())
	}
}

func TestSupervisor_HealthPollTriggersReconnect(t *testing.T) {
	transports := make(chan *fakeTransport, 4)
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		ft := newFakeTransport(nil)
		transports <- ft
		return ft, nil
	})
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-transports

	// Silently drop the connection; only the health poll can see it.
	first.mu.Lock()
	first.connected = false
	first.mu.Unlock()

	select {
	case <-transports:
		// Replacement constructed.
	case <-time.After(time.Second):
		t.Fatal("health poll did not trigger a reconnect")
	}
}

func TestSupervisor_ManualReconnectFromFailed(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		if fail.Load() {
			return newFakeTransport(errors.New("connection refused")), nil
		}
		return newFakeTransport(nil), nil
	})
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	// The backend recovers; a manual reconnect must succeed.
	fail.Store(false)
	if err := s.Reconnect(context.Background()); err != nil {
		t.Fatalf("manual reconnect failed: %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("expected CONNECTED after manual reconnect, got %v", s.State())
	}
}

func TestSupervisor_SendWithoutTransport(t *testing.T) {
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		return newFakeTransport(errors.New("refused")), nil
	})
	defer s.Stop()

	if err := s.SendAudio([]byte("pcm")); !errors.Is(err, ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}
}

func TestSupervisor_StopClosesEverything(t *testing.T) {
	ft := newFakeTransport(nil)
	s := NewSupervisor(fastConfig(), func() (Transport, error) { return ft, nil })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()

	if !ft.isClosed() {
		t.Error("transport not closed on stop")
	}
	if _, open := <-s.Results(); open {
		t.Error("result stream not closed on stop")
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected DISCONNECTED after stop, got %v", s.State())
	}
}

func TestSupervisor_ReconnectAfterStopRefused(t *testing.T) {
	var mu sync.Mutex
	var made []*fakeTransport
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		ft := newFakeTransport(nil)
		mu.Lock()
		made = append(made, ft)
		mu.Unlock()
		return ft, nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()

	if err := s.Reconnect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after stop, got %v", err)
	}

	mu.Lock()
	built := len(made)
	mu.Unlock()
	if built != 1 {
		t.Errorf("stopped supervisor built %d transports, want 1", built)
	}
}

func TestSupervisor_ReconnectRacingStopClosesAllTransports(t *testing.T) {
	var mu sync.Mutex
	var made []*fakeTransport
	s := NewSupervisor(fastConfig(), func() (Transport, error) {
		ft := newFakeTransport(nil)
		mu.Lock()
		made = append(made, ft)
		mu.Unlock()
		return ft, nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reconnects := make(chan struct{})
	go func() {
		defer close(reconnects)
		for i := 0; i < 50; i++ {
			if err := s.Reconnect(context.Background()); errors.Is(err, ErrClosed) {
				return
			}
		}
	}()

	time.Sleep(2 * time.Millisecond)
	s.Stop()
	<-reconnects

	mu.Lock()
	defer mu.Unlock()
	for i, ft := range made {
		if !ft.isClosed() {
			t.Errorf("transport %d left open after stop", i)
		}
	}
}
