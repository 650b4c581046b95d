package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

func newTestInput(t *testing.T, cfg InputConfig) (*InputDriver, *fakeRecognizer, *Floor, <-chan InputEvent, *openGate) {
	t.Helper()
	rec := newFakeRecognizer()
	floor := NewFloor()
	driver := NewInputDriver(rec, floor, cfg)
	gate := &openGate{open: true}
	driver.BindGate(gate)
	events, err := driver.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(driver.ForceStop)
	return driver, rec, floor, events, gate
}

var fastInput = InputConfig{SilenceTimeout: 120 * time.Millisecond, MaxRestarts: 3, RestartDelay: 10 * time.Millisecond}

func TestSegmentsAccumulateIntoSingleAnswer(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)

	for _, segment := range []string{"I", "think", "yes"} {
		session.emit(speech.RecognitionEvent{Text: segment, Final: true})
		time.Sleep(40 * time.Millisecond)
	}

	answer := waitInput(t, events, InputAnswer)
	if answer.Text != "I think yes" {
		t.Fatalf("expected %q, got %q", "I think yes", answer.Text)
	}
	expectNoInput(t, events, InputAnswer, 250*time.Millisecond)

	if driver.Active() {
		t.Fatal("expected capture to stop after submission")
	}
}

func TestSingleSegmentSubmittedAfterSilence(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.nextSession(t).emit(speech.RecognitionEvent{Text: " yes ", Final: true})

	answer := waitInput(t, events, InputAnswer)
	if answer.Text != "yes" {
		t.Fatalf("expected %q, got %q", "yes", answer.Text)
	}
}

func TestInterimPreviewCombinesFinalAndInterim(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, InputConfig{SilenceTimeout: time.Second, MaxRestarts: 3})

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)
	session.emit(speech.RecognitionEvent{Text: "I think", Final: true})
	waitInput(t, events, InputInterim)

	session.emit(speech.RecognitionEvent{Text: "ye"})
	preview := waitInput(t, events, InputInterim)
	if preview.Text != "I think ye" {
		t.Fatalf("expected preview %q, got %q", "I think ye", preview.Text)
	}
}

func TestStartRejectedWhileSpeaking(t *testing.T) {
	driver, _, floor, _, _ := newTestInput(t, fastInput)
	floor.takeForSpeech()

	if err := driver.Start(); !errors.Is(err, ErrOutputActive) {
		t.Fatalf("expected ErrOutputActive, got %v", err)
	}
	if driver.Active() {
		t.Fatal("capture must not start while output speaks")
	}
}

func TestStartRejectedWhileActive(t *testing.T) {
	driver, rec, _, _, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.nextSession(t)
	if err := driver.Start(); !errors.Is(err, ErrCaptureActive) {
		t.Fatalf("expected ErrCaptureActive, got %v", err)
	}
}

func TestUnexpectedEndRestartsUntilExhausted(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, InputConfig{SilenceTimeout: time.Second, MaxRestarts: 2, RestartDelay: 10 * time.Millisecond})

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// initial session plus two restarts
	for i := 0; i < 3; i++ {
		rec.nextSession(t).end()
	}

	waitInput(t, events, InputExhausted)
	select {
	case <-rec.starts:
		t.Fatal("expected no restart beyond the limit")
	case <-time.After(100 * time.Millisecond):
	}
	if driver.Active() {
		t.Fatal("expected capture inactive after exhaustion")
	}
}

func TestBlankFinalKeepsRestartBudget(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, InputConfig{SilenceTimeout: time.Second, MaxRestarts: 1, RestartDelay: 10 * time.Millisecond})

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := rec.nextSession(t)
	first.emit(speech.RecognitionEvent{Text: "hello", Final: true})
	waitInput(t, events, InputInterim)
	first.end()

	restarted := rec.nextSession(t)
	restarted.emit(speech.RecognitionEvent{Text: "   ", Final: true})
	restarted.end()

	if ev := waitInput(t, events, InputExhausted); ev.Text != "hello" {
		t.Fatalf("expected collected text kept on exhaustion, got %q", ev.Text)
	}
	select {
	case <-rec.starts:
		t.Fatal("blank final must not refill the restart budget")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBlankFinalDoesNotExtendSilence(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, InputConfig{SilenceTimeout: 200 * time.Millisecond, MaxRestarts: 3, RestartDelay: 10 * time.Millisecond})

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)
	began := time.Now()
	session.emit(speech.RecognitionEvent{Text: "yes", Final: true})
	time.Sleep(120 * time.Millisecond)
	session.emit(speech.RecognitionEvent{Text: " ", Final: true})

	answer := waitInput(t, events, InputAnswer)
	if answer.Text != "yes" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if elapsed := time.Since(began); elapsed > 290*time.Millisecond {
		t.Fatalf("blank final re-armed the silence timer: answer after %s", elapsed)
	}
}

func TestNoRestartWhenTurnStateForbids(t *testing.T) {
	driver, rec, _, _, gate := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)
	gate.set(false)
	session.end()

	select {
	case <-rec.starts:
		t.Fatal("expected no restart while listening is not permitted")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPermissionDeniedIsFatal(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.nextSession(t).emit(speech.RecognitionEvent{Err: speech.NewRecognitionError(speech.CodeNotAllowed, nil)})

	ev := waitInput(t, events, InputError)
	if !ev.Fatal || ev.Message != MessagePermissionDenied {
		t.Fatalf("expected fatal permission error, got %+v", ev)
	}
	select {
	case <-rec.starts:
		t.Fatal("expected no restart after permission denial")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNetworkErrorIsVisibleButRecovers(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)
	session.emit(speech.RecognitionEvent{Err: speech.NewRecognitionError(speech.CodeNetwork, errors.New("offline"))})
	session.end()

	ev := waitInput(t, events, InputError)
	if ev.Fatal || ev.Message != MessageNetworkError {
		t.Fatalf("expected non-fatal network error, got %+v", ev)
	}
	rec.nextSession(t)
}

func TestForceStopAbandonsTurn(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.nextSession(t).emit(speech.RecognitionEvent{Text: "half an answer", Final: true})
	waitInput(t, events, InputInterim)

	driver.ForceStop()
	expectNoInput(t, events, InputAnswer, 250*time.Millisecond)
}

func TestStopKeepsPendingAnswer(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rec.nextSession(t).emit(speech.RecognitionEvent{Text: "done speaking", Final: true})
	waitInput(t, events, InputInterim)

	driver.Stop()
	driver.Stop()

	answer := waitInput(t, events, InputAnswer)
	if answer.Text != "done speaking" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
}

func TestInputWithoutEngineReportsFatal(t *testing.T) {
	driver := NewInputDriver(nil, NewFloor(), fastInput)
	events, _ := driver.Subscribe()

	if err := driver.Start(); !errors.Is(err, speech.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if ev := waitInput(t, events, InputError); !ev.Fatal {
		t.Fatalf("expected fatal error, got %+v", ev)
	}
}

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	acc.SetInterim("hel")
	if acc.Preview() != "hel" {
		t.Fatalf("unexpected preview %q", acc.Preview())
	}
	acc.Append("hello")
	if acc.Append("  ") {
		t.Fatal("expected blank segment to be rejected")
	}
	acc.Append("world")
	if acc.Text() != "hello world" {
		t.Fatalf("unexpected text %q", acc.Text())
	}
	acc.Reset()
	if !acc.Empty() || acc.Preview() != "" {
		t.Fatal("expected empty accumulator after reset")
	}
}
