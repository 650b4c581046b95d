package voice

import (
	"testing"
	"time"

	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

func TestQueueKeepsOrderAndDropsOnlyPreviews(t *testing.T) {
	q := newEventQueue[int](2)
	q.push(1, false)
	q.push(2, true)
	q.push(3, true) // full: preview dropped
	q.push(4, false)
	q.push(5, false)

	var got []int
	for len(got) < 4 {
		select {
		case v := <-q.ch:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	want := []int{1, 2, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	q.push(6, true)
	select {
	case v := <-q.ch:
		if v != 6 {
			t.Fatalf("expected 6 after overflow drained, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("expected direct delivery once overflow drained")
	}
}

func TestInputAnswerSurvivesFullBuffer(t *testing.T) {
	driver, rec, _, events, _ := newTestInput(t, fastInput)

	if err := driver.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := rec.nextSession(t)
	// nobody reads while the previews pile up past the buffer
	for i := 0; i < 300; i++ {
		session.emit(speech.RecognitionEvent{Text: "um"})
	}
	session.emit(speech.RecognitionEvent{Text: "final answer", Final: true})

	answer := waitInput(t, events, InputAnswer)
	if answer.Text != "final answer" {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
}
