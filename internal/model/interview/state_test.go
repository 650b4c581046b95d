package interview

import "testing"

func TestTurnStateString(t *testing.T) {
	cases := map[TurnState]string{
		StateIdle:         "IDLE",
		StateAISpeaking:   "AI_SPEAKING",
		StateUserTurn:     "USER_TURN",
		StateSessionEnded: "SESSION_ENDED",
		TurnState(42):     "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestOnlySessionEndedIsTerminal(t *testing.T) {
	for _, state := range []TurnState{StateIdle, StateAISpeaking, StateUserTurn} {
		if state.Terminal() {
			t.Fatalf("expected %s to be non-terminal", state)
		}
	}
	if !StateSessionEnded.Terminal() {
		t.Fatal("expected SESSION_ENDED to be terminal")
	}
}
