package interview

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/zhouzirui/voice-interview/client/pkg/utils"
)

// Activity is one observable step of a scripted interview.
type Activity struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text,omitempty"`
	Time      time.Time `json:"time"`
}

// Monitor fans interview activity out to SSE subscribers.
type Monitor struct {
	mu   sync.Mutex
	subs map[chan Activity]struct{}
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{subs: make(map[chan Activity]struct{})}
}

// Publish delivers a to every subscriber without blocking.
func (m *Monitor) Publish(a Activity) {
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

func (m *Monitor) subscribe() chan Activity {
	ch := make(chan Activity, 32)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

func (m *Monitor) unsubscribe(ch chan Activity) {
	m.mu.Lock()
	delete(m.subs, ch)
	m.mu.Unlock()
}

// ServeHTTP streams activity as server-sent events until the client leaves.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	ch := m.subscribe()
	defer m.unsubscribe(ch)

	if err := utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"}); err != nil {
		return
	}
	log.Printf("[monitor] subscriber attached")

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[monitor] subscriber detached")
			return
		case a := <-ch:
			if err := utils.SendSSEEvent(w, flusher, a.Type, a); err != nil {
				return
			}
		}
	}
}
