package interview

import (
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/voice-interview/client/internal/model/interview"
)

// Transcript is the session's prompt queue and append-only turn log.
type Transcript struct {
	session model.Session

	mu      sync.RWMutex
	prompts []string
	seen    map[string]struct{}
	turns   []model.Turn
}

// NewTranscript creates an empty log for session.
func NewTranscript(session model.Session) *Transcript {
	return &Transcript{session: session, seen: make(map[string]struct{})}
}

// AddPrompt queues a prompt in arrival order. Identical prompt text is only
// queued once.
func (t *Transcript) AddPrompt(text string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[text]; dup {
		return -1, false
	}
	t.seen[text] = struct{}{}
	t.prompts = append(t.prompts, text)
	return len(t.prompts) - 1, true
}

// Prompt returns the prompt at index i.
func (t *Transcript) Prompt(i int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.prompts) {
		return "", false
	}
	return t.prompts[i], true
}

// PromptCount returns how many prompts were received.
func (t *Transcript) PromptCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prompts)
}

// Record appends an immutable turn and returns it.
func (t *Transcript) Record(speaker model.Speaker, text string) model.Turn {
	turn := model.Turn{
		ID:        uuid.NewString(),
		SessionID: t.session.ID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	t.turns = append(t.turns, turn)
	t.mu.Unlock()
	return turn
}

// Turns returns a copy of the turn log.
func (t *Transcript) Turns() []model.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}
