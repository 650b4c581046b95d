package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	model "github.com/zhouzirui/voice-interview/client/internal/model/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/transport"
	"github.com/zhouzirui/voice-interview/client/internal/service/voice"
)

// ErrNotRunning is returned by manual actions after Run has returned.
var ErrNotRunning = errors.New("interview: controller is not running")

// Channel is the transport the controller consumes.
type Channel interface {
	Subscribe() (<-chan transport.Event, error)
	SendAnswer(answer string) error
}

// Speaker is the speech output side.
type Speaker interface {
	Subscribe() (<-chan voice.OutputEvent, error)
	Speak(text string, onComplete func())
	Cancel()
}

// Listener is the speech input side.
type Listener interface {
	Subscribe() (<-chan voice.InputEvent, error)
	Start() error
	ForceStop()
}

// Presenter renders controller output to the candidate.
type Presenter interface {
	ShowState(state model.TurnState)
	ShowPrompt(turn model.Turn)
	ShowTranscript(preview string)
	ShowAnswer(turn model.Turn)
	ShowNotice(message string)
	ShowBlockingError(message string)
	OfferManualAnswer()
	ShowTerminal()
}

// Controls are the manual actions a front end may trigger while Run is active.
type Controls interface {
	State() model.TurnState
	CanListen() bool
	ListenAgain() error
	SubmitManual(text string) error
	Retry() error
}

var _ Controls = (*Controller)(nil)

// EndReason explains why Run returned.
type EndReason int

const (
	EndCompleted EndReason = iota
	EndAuthFailed
	EndCancelled
)

func (r EndReason) String() string {
	switch r {
	case EndCompleted:
		return "completed"
	case EndAuthFailed:
		return "auth_failed"
	default:
		return "cancelled"
	}
}

// Options tunes controller timings.
type Options struct {
	// ArmDelay separates output completion from the start of capture.
	ArmDelay time.Duration
	// ClosureGrace defers the terminal screen after the channel closes.
	ClosureGrace time.Duration
}

// Controller is the turn-taking state machine. All state changes happen on
// the goroutine running Run; drivers only publish events to it.
type Controller struct {
	session    model.Session
	transcript *Transcript
	channel    Channel
	output     Speaker
	input      Listener
	ui         Presenter
	opts       Options

	state   atomic.Int32
	mailbox chan func()
	done    chan struct{}

	// owned by the Run goroutine
	lastSpoken int
	blocked    bool
	closing    bool
	reason     EndReason
}

// NewController wires a controller for one session.
func NewController(session model.Session, channel Channel, output Speaker, input Listener, ui Presenter, opts Options) *Controller {
	c := &Controller{
		session:    session,
		transcript: NewTranscript(session),
		channel:    channel,
		output:     output,
		input:      input,
		ui:         ui,
		opts:       opts,
		mailbox:    make(chan func(), 64),
		done:       make(chan struct{}),
		lastSpoken: -1,
	}
	c.state.Store(int32(model.StateIdle))
	return c
}

// State returns the current turn state.
func (c *Controller) State() model.TurnState {
	return model.TurnState(c.state.Load())
}

// CanListen reports whether input capture is permitted right now.
func (c *Controller) CanListen() bool {
	return c.State() == model.StateUserTurn
}

// Transcript exposes the session log for display.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Run processes events until the session ends or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) (EndReason, error) {
	defer close(c.done)

	channelEvents, err := c.channel.Subscribe()
	if err != nil {
		return EndCancelled, fmt.Errorf("subscribe channel: %w", err)
	}
	outputEvents, err := c.output.Subscribe()
	if err != nil {
		return EndCancelled, fmt.Errorf("subscribe output: %w", err)
	}
	inputEvents, err := c.input.Subscribe()
	if err != nil {
		return EndCancelled, fmt.Errorf("subscribe input: %w", err)
	}

	log.Printf("[interview] session %s started", c.session.ID)
	c.ui.ShowState(model.StateIdle)

	for {
		select {
		case <-ctx.Done():
			c.finish(EndCancelled)
		case ev := <-channelEvents:
			c.handleChannel(ev)
		case ev := <-outputEvents:
			c.handleOutput(ev)
		case ev := <-inputEvents:
			c.handleInput(ev)
		case fn := <-c.mailbox:
			fn()
		}

		if c.State().Terminal() {
			log.Printf("[interview] session %s ended: %s", c.session.ID, c.reason)
			return c.reason, nil
		}
	}
}

// ListenAgain re-arms capture after the restart limit was reached.
func (c *Controller) ListenAgain() error {
	return c.post(func() {
		if c.State() != model.StateUserTurn || c.blocked {
			return
		}
		if err := c.input.Start(); err != nil {
			log.Printf("[interview] listen again failed: %v", err)
		}
	})
}

// SubmitManual submits a typed answer for the current user turn.
func (c *Controller) SubmitManual(text string) error {
	return c.post(func() {
		if c.State() != model.StateUserTurn || text == "" {
			return
		}
		c.input.ForceStop()
		c.submit(text)
	})
}

// Retry clears a blocking error and re-arms capture if the user holds the turn.
func (c *Controller) Retry() error {
	return c.post(func() {
		if !c.blocked {
			return
		}
		c.blocked = false
		if c.State() == model.StateUserTurn {
			c.arm(c.lastSpoken)
		}
	})
}

func (c *Controller) post(fn func()) error {
	select {
	case <-c.done:
		return ErrNotRunning
	default:
	}
	select {
	case c.mailbox <- fn:
		return nil
	case <-c.done:
		return ErrNotRunning
	}
}

func (c *Controller) setState(state model.TurnState) {
	prev := model.TurnState(c.state.Swap(int32(state)))
	if prev == state {
		return
	}
	log.Printf("[interview] %s -> %s", prev, state)
	c.ui.ShowState(state)
}

func (c *Controller) handleChannel(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		log.Printf("[interview] channel open")
	case transport.EventPrompt:
		if _, added := c.transcript.AddPrompt(ev.Prompt); !added {
			log.Printf("[interview] duplicate prompt ignored")
			return
		}
		c.advance()
	case transport.EventError:
		log.Printf("[interview] channel error: %v", ev.Err)
	case transport.EventAuthFailed:
		c.finish(EndAuthFailed)
	case transport.EventClosed:
		if ev.Local || c.closing {
			return
		}
		c.closing = true
		log.Printf("[interview] channel closed, ending session in %s", c.opts.ClosureGrace)
		time.AfterFunc(c.opts.ClosureGrace, func() {
			_ = c.post(func() { c.finish(EndCompleted) })
		})
	}
}

func (c *Controller) handleOutput(ev voice.OutputEvent) {
	if ev.Kind == voice.OutputFailed && ev.Fatal {
		c.ui.ShowBlockingError("Speech output is not supported on this device.")
	}
}

func (c *Controller) handleInput(ev voice.InputEvent) {
	switch ev.Kind {
	case voice.InputInterim:
		c.ui.ShowTranscript(ev.Text)
	case voice.InputAnswer:
		if c.State() != model.StateUserTurn {
			log.Printf("[interview] answer outside user turn discarded")
			return
		}
		c.submit(ev.Text)
	case voice.InputError:
		if ev.Fatal {
			c.blocked = true
			c.ui.ShowBlockingError(ev.Message)
			return
		}
		c.ui.ShowNotice(ev.Message)
	case voice.InputExhausted:
		if c.State() == model.StateUserTurn {
			c.ui.OfferManualAnswer()
		}
	}
}

// advance speaks the oldest unspoken prompt when idle.
func (c *Controller) advance() {
	if c.State() != model.StateIdle || c.closing {
		return
	}
	next := c.lastSpoken + 1
	text, ok := c.transcript.Prompt(next)
	if !ok {
		return
	}

	c.lastSpoken = next
	c.setState(model.StateAISpeaking)
	c.ui.ShowPrompt(c.transcript.Record(model.SpeakerAI, text))
	c.output.Speak(text, func() {
		_ = c.post(func() { c.spoken(next) })
	})
}

func (c *Controller) spoken(index int) {
	if c.State() != model.StateAISpeaking || c.lastSpoken != index {
		return
	}
	c.setState(model.StateUserTurn)

	if c.opts.ArmDelay <= 0 {
		c.arm(index)
		return
	}
	time.AfterFunc(c.opts.ArmDelay, func() {
		_ = c.post(func() { c.arm(index) })
	})
}

func (c *Controller) arm(index int) {
	if c.State() != model.StateUserTurn || c.lastSpoken != index || c.blocked {
		return
	}
	if err := c.input.Start(); err != nil {
		log.Printf("[interview] arming input failed: %v", err)
	}
}

func (c *Controller) submit(text string) {
	c.ui.ShowAnswer(c.transcript.Record(model.SpeakerHuman, text))
	c.ui.ShowTranscript("")
	if err := c.channel.SendAnswer(text); err != nil {
		log.Printf("[interview] submitting answer failed: %v", err)
		c.ui.ShowNotice("Your answer could not be sent.")
	}
	c.setState(model.StateIdle)
	c.advance()
}

func (c *Controller) finish(reason EndReason) {
	if c.State().Terminal() {
		return
	}
	c.reason = reason
	c.setState(model.StateSessionEnded)
	c.input.ForceStop()
	c.output.Cancel()
	if reason == EndCompleted {
		c.ui.ShowTerminal()
	}
}
