package interview

// TurnState is the single source of truth for who may act in a session.
type TurnState int32

const (
	StateIdle TurnState = iota
	StateAISpeaking
	StateUserTurn
	StateSessionEnded
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAISpeaking:
		return "AI_SPEAKING"
	case StateUserTurn:
		return "USER_TURN"
	case StateSessionEnded:
		return "SESSION_ENDED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s TurnState) Terminal() bool {
	return s == StateSessionEnded
}

// StatusMessage returns the candidate-facing status line for the state.
func (s TurnState) StatusMessage() string {
	switch s {
	case StateAISpeaking:
		return "AI is speaking..."
	case StateUserTurn:
		return "Listening... speak your answer"
	case StateSessionEnded:
		return "Interview complete"
	default:
		return "Waiting for the next question..."
	}
}
