package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

// blockingSynth speaks until released or cancelled.
type blockingSynth struct {
	release chan struct{}
	err     error
	spoken  chan string
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{release: make(chan struct{}, 8), spoken: make(chan string, 8)}
}

func (s *blockingSynth) Speak(ctx context.Context, text string) error {
	s.spoken <- text
	select {
	case <-s.release:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitSpoken(t *testing.T, synth *blockingSynth) string {
	t.Helper()
	select {
	case text := <-synth.spoken:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("synthesizer never invoked")
		return ""
	}
}

func TestSpeakCompletesOnceAfterSettle(t *testing.T) {
	synth := newBlockingSynth()
	driver := NewOutputDriver(synth, NewFloor(), 60*time.Millisecond)

	var calls atomic.Int32
	done := make(chan time.Time, 2)
	driver.Speak("Why do you want this role?", func() {
		calls.Add(1)
		done <- time.Now()
	})

	if got := waitSpoken(t, synth); got != "Why do you want this role?" {
		t.Fatalf("unexpected text %q", got)
	}
	if !driver.Speaking() {
		t.Fatal("expected speaking while utterance plays")
	}

	finished := time.Now()
	synth.release <- struct{}{}

	select {
	case at := <-done:
		if at.Sub(finished) < 50*time.Millisecond {
			t.Fatalf("completion fired before settle delay: %s", at.Sub(finished))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired")
	}

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one completion, got %d", calls.Load())
	}
	if driver.Speaking() {
		t.Fatal("expected not speaking after completion")
	}
}

func TestSpeakPreemptsInputCapture(t *testing.T) {
	floor := NewFloor()
	rec := newFakeRecognizer()
	input := NewInputDriver(rec, floor, fastInput)
	defer input.ForceStop()

	if err := input.Start(); err != nil {
		t.Fatalf("start input: %v", err)
	}
	rec.nextSession(t)

	synth := newBlockingSynth()
	output := NewOutputDriver(synth, floor, 0)
	output.Speak("Next question", nil)

	if input.Active() {
		t.Fatal("input must be stopped before output starts")
	}
	waitSpoken(t, synth)
	if err := input.Start(); !errors.Is(err, ErrOutputActive) {
		t.Fatalf("expected ErrOutputActive during speech, got %v", err)
	}
	synth.release <- struct{}{}
}

func TestSpeakWithoutEngineReportsFatalAndCompletes(t *testing.T) {
	driver := NewOutputDriver(nil, NewFloor(), 0)
	events, _ := driver.Subscribe()

	done := make(chan struct{})
	driver.Speak("hello", func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired without engine")
	}

	select {
	case ev := <-events:
		if ev.Kind != OutputFailed || !ev.Fatal || !errors.Is(ev.Err, speech.ErrEngineUnavailable) {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected fatal setup event")
	}
	if driver.Speaking() {
		t.Fatal("expected floor released")
	}
}

func TestSpeakErrorStillCompletes(t *testing.T) {
	synth := newBlockingSynth()
	synth.err = errors.New("device busy")
	driver := NewOutputDriver(synth, NewFloor(), 10*time.Millisecond)
	events, _ := driver.Subscribe()

	done := make(chan struct{})
	driver.Speak("hello", func() { close(done) })
	waitSpoken(t, synth)
	synth.release <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired after error")
	}

	sawFailure := false
	for len(events) > 0 {
		if ev := <-events; ev.Kind == OutputFailed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatal("expected failure event")
	}
}

func TestNewUtteranceCancelsPrevious(t *testing.T) {
	synth := newBlockingSynth()
	driver := NewOutputDriver(synth, NewFloor(), 0)

	var first, second atomic.Int32
	driver.Speak("first", func() { first.Add(1) })
	waitSpoken(t, synth)

	secondDone := make(chan struct{})
	driver.Speak("second", func() {
		second.Add(1)
		close(secondDone)
	})
	waitSpoken(t, synth)

	time.Sleep(50 * time.Millisecond)
	if first.Load() != 1 {
		t.Fatalf("expected superseded utterance to complete once, got %d", first.Load())
	}
	if !driver.Speaking() {
		t.Fatal("superseded utterance must not release the floor held by the new one")
	}

	driver.Cancel()
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled utterance never completed")
	}
	if second.Load() != 1 || driver.Speaking() {
		t.Fatalf("unexpected state after cancel: calls=%d speaking=%v", second.Load(), driver.Speaking())
	}
}

func TestCancelDuringSettleCompletesImmediately(t *testing.T) {
	synth := newBlockingSynth()
	driver := NewOutputDriver(synth, NewFloor(), 2*time.Second)

	done := make(chan struct{})
	driver.Speak("Thank you.", func() { close(done) })
	waitSpoken(t, synth)
	synth.release <- struct{}{}

	// wait for the floor to be handed back, which happens before the settle
	deadline := time.Now().Add(time.Second)
	for driver.Speaking() {
		if time.Now().After(deadline) {
			t.Fatal("floor never released")
		}
		time.Sleep(5 * time.Millisecond)
	}

	driver.Cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cancel did not cut the settle delay short")
	}
}
