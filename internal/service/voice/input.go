package voice

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

var (
	// ErrOutputActive rejects Start while output holds the floor.
	ErrOutputActive = errors.New("voice: output is speaking")
	// ErrCaptureActive rejects Start while a capture session runs.
	ErrCaptureActive = errors.New("voice: capture already active")
)

// User-facing messages for input errors.
const (
	MessagePermissionDenied = "Please allow microphone access."
	MessageNetworkError     = "Network error during speech recognition. Please check your connection."
)

// TurnGate tells the input driver whether listening is currently allowed.
type TurnGate interface {
	CanListen() bool
}

// InputConfig holds end-of-turn and restart tuning.
type InputConfig struct {
	SilenceTimeout time.Duration
	MaxRestarts    int
	RestartDelay   time.Duration
}

// InputEventKind enumerates input driver notifications.
type InputEventKind int

const (
	InputListening InputEventKind = iota
	InputInterim
	InputAnswer
	InputStopped
	InputError
	InputExhausted
)

// InputEvent is published on the driver's subscription.
type InputEvent struct {
	Kind InputEventKind
	// Text is the live preview for InputInterim and the frozen answer for InputAnswer.
	Text    string
	Err     error
	Fatal   bool
	Message string
}

// InputDriver captures one multi-segment utterance per user turn.
type InputDriver struct {
	rec   speech.Recognizer
	floor *Floor
	cfg   InputConfig

	mu          sync.Mutex
	gate        TurnGate
	active      bool
	intentional bool
	restarts    int
	// session identifies the current recognizer run, turn the current user turn.
	session      uint64
	turn         uint64
	cancel       context.CancelFunc
	acc          Accumulator
	silenceTimer *time.Timer
	restartTimer *time.Timer

	events     *eventQueue[InputEvent]
	subscribed atomic.Bool
}

// NewInputDriver creates a driver and registers it on floor for preemption.
func NewInputDriver(rec speech.Recognizer, floor *Floor, cfg InputConfig) *InputDriver {
	d := &InputDriver{
		rec:    rec,
		floor:  floor,
		cfg:    cfg,
		events: newEventQueue[InputEvent](256),
	}
	floor.Attach(d)
	return d
}

// BindGate installs the turn-state query consulted before every restart.
func (d *InputDriver) BindGate(gate TurnGate) {
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
}

// Subscribe returns the event stream. Only one subscriber is allowed.
func (d *InputDriver) Subscribe() (<-chan InputEvent, error) {
	if !d.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}
	return d.events.ch, nil
}

// Active reports whether a capture session is running.
func (d *InputDriver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Start begins a new user turn.
func (d *InputDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.floor.Speaking() {
		log.Printf("[voice] start rejected: output is speaking")
		return ErrOutputActive
	}
	if d.active {
		log.Printf("[voice] start rejected: capture already active")
		return ErrCaptureActive
	}
	if d.rec == nil {
		log.Printf("[voice] speech input unavailable")
		d.publishLocked(InputEvent{Kind: InputError, Err: speech.ErrEngineUnavailable, Fatal: true, Message: "Speech recognition is not supported on this device."})
		return speech.ErrEngineUnavailable
	}

	d.stopTimersLocked()
	d.acc.Reset()
	d.turn++
	d.restarts = 0
	d.intentional = false
	d.beginLocked()
	return nil
}

// Stop ends capture. A pending end-of-turn timer still delivers the answer
// collected so far. Stop is idempotent.
func (d *InputDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.intentional = true
	if d.restartTimer != nil {
		d.restartTimer.Stop()
		d.restartTimer = nil
	}
	d.endSessionLocked()
}

// ForceStop ends capture and abandons the current turn.
func (d *InputDriver) ForceStop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.intentional = true
	d.stopTimersLocked()
	d.acc.Reset()
	d.turn++
	d.endSessionLocked()
}

func (d *InputDriver) beginLocked() {
	d.session++
	session := d.session
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.active = true

	go d.run(ctx, session)
}

func (d *InputDriver) endSessionLocked() {
	if !d.active {
		return
	}
	d.session++
	d.active = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.publishLocked(InputEvent{Kind: InputStopped})
}

func (d *InputDriver) stopTimersLocked() {
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
		d.silenceTimer = nil
	}
	if d.restartTimer != nil {
		d.restartTimer.Stop()
		d.restartTimer = nil
	}
}

func (d *InputDriver) run(ctx context.Context, session uint64) {
	results, err := d.rec.Start(ctx)
	if err != nil {
		var recErr *speech.RecognitionError
		if !errors.As(err, &recErr) {
			recErr = speech.NewRecognitionError(speech.CodeUnknown, err)
		}
		d.handleError(session, recErr)
		d.handleEnd(session)
		return
	}

	d.mu.Lock()
	if d.session == session {
		d.publishLocked(InputEvent{Kind: InputListening})
	}
	d.mu.Unlock()

	for ev := range results {
		if ev.Err != nil {
			d.handleError(session, ev.Err)
			continue
		}
		d.handleResult(session, ev)
	}
	d.handleEnd(session)
}

func (d *InputDriver) handleResult(session uint64, ev speech.RecognitionEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != session {
		return
	}

	if !ev.Final {
		d.acc.SetInterim(ev.Text)
		d.publishLocked(InputEvent{Kind: InputInterim, Text: d.acc.Preview()})
		return
	}

	if !d.acc.Append(ev.Text) {
		// blank finals are not progress: no budget reset, no timer re-arm
		return
	}
	// A finalized segment is progress; restart budget applies to consecutive failures.
	d.restarts = 0
	d.publishLocked(InputEvent{Kind: InputInterim, Text: d.acc.Preview()})

	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
	}
	turn := d.turn
	d.silenceTimer = time.AfterFunc(d.cfg.SilenceTimeout, func() {
		d.finalize(turn)
	})
}

// finalize hands the frozen transcript to the subscriber.
func (d *InputDriver) finalize(turn uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.turn != turn {
		return
	}

	answer := d.acc.Text()
	d.silenceTimer = nil
	if answer == "" {
		return
	}

	d.acc.Reset()
	d.intentional = true
	if d.restartTimer != nil {
		d.restartTimer.Stop()
		d.restartTimer = nil
	}
	d.turn++
	d.publishLocked(InputEvent{Kind: InputAnswer, Text: answer})
	d.endSessionLocked()
}

func (d *InputDriver) handleError(session uint64, recErr *speech.RecognitionError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != session {
		return
	}

	switch {
	case recErr.Fatal():
		log.Printf("[voice] microphone permission denied: %v", recErr)
		d.intentional = true
		d.publishLocked(InputEvent{Kind: InputError, Err: recErr, Fatal: true, Message: MessagePermissionDenied})
		d.endSessionLocked()
	case recErr.Code == speech.CodeNoSpeech || recErr.Code == speech.CodeAborted:
		log.Printf("[voice] recognition ended without result: %s", recErr.Code)
	case recErr.Code == speech.CodeNetwork:
		log.Printf("[voice] recognition network error: %v", recErr)
		d.publishLocked(InputEvent{Kind: InputError, Err: recErr, Message: MessageNetworkError})
	default:
		log.Printf("[voice] recognition error: %v", recErr)
	}
}

// handleEnd runs when a recognizer session closes on its own.
func (d *InputDriver) handleEnd(session uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != session {
		return
	}

	d.active = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	if d.intentional {
		d.publishLocked(InputEvent{Kind: InputStopped})
		return
	}
	if d.gate != nil && !d.gate.CanListen() {
		return
	}
	if d.floor.Speaking() {
		return
	}
	if d.restarts >= d.cfg.MaxRestarts {
		log.Printf("[voice] recognition restart limit reached (%d)", d.cfg.MaxRestarts)
		d.publishLocked(InputEvent{Kind: InputExhausted, Text: d.acc.Text()})
		return
	}

	d.restarts++
	attempt := d.restarts
	log.Printf("[voice] recognition ended unexpectedly, restart %d/%d", attempt, d.cfg.MaxRestarts)
	d.restartTimer = time.AfterFunc(d.cfg.RestartDelay, func() {
		d.restart(session)
	})
}

func (d *InputDriver) restart(session uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.restartTimer = nil
	if d.session != session || d.active || d.intentional {
		return
	}
	if d.gate != nil && !d.gate.CanListen() {
		return
	}
	if d.floor.Speaking() {
		return
	}
	d.beginLocked()
}

// publishLocked never drops answers, stops, errors or exhaustion; a stale
// interim preview is superseded by the next one.
func (d *InputDriver) publishLocked(ev InputEvent) {
	d.events.push(ev, ev.Kind == InputInterim)
}
