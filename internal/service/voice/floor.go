package voice

import "sync"

// Preemptible is anything that must stop capturing before output starts.
type Preemptible interface {
	ForceStop()
}

// Floor arbitrates between speaking and listening. At most one holds it.
type Floor struct {
	mu       sync.Mutex
	speaking bool
	listener Preemptible
}

func NewFloor() *Floor {
	return &Floor{}
}

// Attach registers the input side that is preempted by output.
func (f *Floor) Attach(listener Preemptible) {
	f.mu.Lock()
	f.listener = listener
	f.mu.Unlock()
}

// Speaking reports whether output currently holds the floor.
func (f *Floor) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

// takeForSpeech marks output active, then forces the listener to stop.
func (f *Floor) takeForSpeech() {
	f.mu.Lock()
	f.speaking = true
	listener := f.listener
	f.mu.Unlock()

	if listener != nil {
		listener.ForceStop()
	}
}

func (f *Floor) releaseSpeech() {
	f.mu.Lock()
	f.speaking = false
	f.mu.Unlock()
}
