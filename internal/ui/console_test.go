package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	model "github.com/zhouzirui/voice-interview/client/internal/model/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

type fakeControls struct {
	state   model.TurnState
	manual  []string
	listens int
	retries int
}

func (f *fakeControls) State() model.TurnState { return f.state }
func (f *fakeControls) CanListen() bool        { return f.state == model.StateUserTurn }
func (f *fakeControls) ListenAgain() error {
	f.listens++
	return nil
}
func (f *fakeControls) SubmitManual(text string) error {
	f.manual = append(f.manual, text)
	return nil
}
func (f *fakeControls) Retry() error {
	f.retries++
	return nil
}

func TestTypedLineSubmitsDuringUserTurn(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	controls := &fakeControls{state: model.StateUserTurn}
	console.Bind(controls)

	console.HandleLine("  I led the migration.  ")
	if len(controls.manual) != 1 || controls.manual[0] != "I led the migration." {
		t.Fatalf("expected trimmed manual answer, got %v", controls.manual)
	}
}

func TestTypedLineOutsideTurnIsRejected(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	controls := &fakeControls{state: model.StateAISpeaking}
	console.Bind(controls)

	console.HandleLine("too early")
	if len(controls.manual) != 0 {
		t.Fatalf("expected no submission, got %v", controls.manual)
	}
	if !strings.Contains(out.String(), "wait for the next question") {
		t.Fatalf("expected wait message, got %q", out.String())
	}
}

func TestTypedLineFeedsListeningRecognizer(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	rec := speech.NewConsoleRecognizer()
	console.Recognizer = rec
	controls := &fakeControls{state: model.StateUserTurn}
	console.Bind(controls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := rec.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	console.HandleLine("spoken answer")
	select {
	case ev := <-events:
		if !ev.Final || ev.Text != "spoken answer" {
			t.Fatalf("expected final segment, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected recognizer to receive the line")
	}
	if len(controls.manual) != 0 {
		t.Fatalf("expected recognizer path, got manual %v", controls.manual)
	}
}

func TestCommands(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	controls := &fakeControls{state: model.StateUserTurn}
	console.Bind(controls)
	console.Level = func() float64 { return 0.5 }
	quit := false
	console.Quit = func() { quit = true }

	console.HandleLine("/listen")
	console.HandleLine("/retry")
	console.HandleLine("/level")
	console.HandleLine("/quit")
	console.HandleLine("/bogus")

	if controls.listens != 1 || controls.retries != 1 {
		t.Fatalf("expected one listen and one retry, got %d and %d", controls.listens, controls.retries)
	}
	if !quit {
		t.Fatal("expected quit callback")
	}
	if !strings.Contains(out.String(), "[##########..........] 0.50") {
		t.Fatalf("expected level bar, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Unknown command /bogus") {
		t.Fatalf("expected unknown command notice, got %q", out.String())
	}
}

func TestAskPhoneTakesNextLine(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	controls := &fakeControls{state: model.StateUserTurn}
	console.Bind(controls)

	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go console.Serve(ctx, r)

	result := make(chan string, 1)
	go func() {
		phone, err := console.AskPhone(ctx)
		if err != nil {
			t.Errorf("ask phone: %v", err)
		}
		result <- phone
	}()

	// wait for the prompt before typing
	deadline := time.Now().Add(time.Second)
	for {
		console.mu.Lock()
		waiting := console.phone != nil
		console.mu.Unlock()
		if waiting || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	io.WriteString(w, "9876543210\n")

	select {
	case phone := <-result:
		if phone != "9876543210" {
			t.Fatalf("expected phone, got %q", phone)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for phone")
	}
	if len(controls.manual) != 0 {
		t.Fatalf("expected phone line not treated as answer, got %v", controls.manual)
	}
	w.Close()
}

func TestAskPhoneAfterInputEnds(t *testing.T) {
	console := NewConsole(io.Discard)
	console.Serve(context.Background(), strings.NewReader(""))

	if _, err := console.AskPhone(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStatusLines(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)
	console.ShowState(model.StateAISpeaking)
	console.ShowState(model.StateSessionEnded)
	console.ShowPrompt(model.Turn{Text: "Why Go?"})

	got := out.String()
	if !strings.Contains(got, "AI is speaking...") {
		t.Fatalf("expected speaking status, got %q", got)
	}
	if strings.Contains(got, "Interview complete") {
		t.Fatalf("expected no status for ended state, got %q", got)
	}
	if !strings.Contains(got, "Interviewer: Why Go?") {
		t.Fatalf("expected echoed prompt, got %q", got)
	}
}

func TestRetryReleasesBootstrapWait(t *testing.T) {
	console := NewConsole(io.Discard)
	controls := &fakeControls{}
	console.Bind(controls)

	done := make(chan error, 1)
	go func() { done <- console.WaitRetry(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for {
		console.mu.Lock()
		waiting := console.retry != nil
		console.mu.Unlock()
		if waiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for WaitRetry to register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	console.HandleLine("/retry")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after /retry, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retry")
	}
	if controls.retries != 0 {
		t.Fatalf("expected bootstrap retry not forwarded to controller, got %d", controls.retries)
	}

	console.HandleLine("/retry")
	if controls.retries != 1 {
		t.Fatalf("expected later /retry to reach controller, got %d", controls.retries)
	}
}

func TestWaitRetryAfterInputEnds(t *testing.T) {
	console := NewConsole(io.Discard)
	console.Serve(context.Background(), strings.NewReader(""))

	if err := console.WaitRetry(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
