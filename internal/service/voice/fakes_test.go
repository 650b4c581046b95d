package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
	events chan speech.RecognitionEvent
}

func (s *fakeSession) emit(ev speech.RecognitionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *fakeSession) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

type fakeRecognizer struct {
	mu       sync.Mutex
	startErr error
	starts   chan *fakeSession
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{starts: make(chan *fakeSession, 32)}
}

func (f *fakeRecognizer) Start(ctx context.Context) (<-chan speech.RecognitionEvent, error) {
	f.mu.Lock()
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := &fakeSession{events: make(chan speech.RecognitionEvent, 16)}
	go func() {
		<-ctx.Done()
		s.end()
	}()
	f.starts <- s
	return s.events, nil
}

func (f *fakeRecognizer) nextSession(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-f.starts:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer was never started")
		return nil
	}
}

type openGate struct {
	mu   sync.Mutex
	open bool
}

func (g *openGate) CanListen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *openGate) set(open bool) {
	g.mu.Lock()
	g.open = open
	g.mu.Unlock()
}

func waitInput(t *testing.T, events <-chan InputEvent, kind InputEventKind) InputEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for input event %d", kind)
		}
	}
}

func expectNoInput(t *testing.T, events <-chan InputEvent, kind InputEventKind, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				t.Fatalf("unexpected input event %d: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}
