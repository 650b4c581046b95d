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

// ErrAlreadySubscribed is returned by a second Subscribe on either driver.
var ErrAlreadySubscribed = errors.New("voice: events already subscribed")

// OutputEventKind enumerates output driver notifications.
type OutputEventKind int

const (
	OutputStarted OutputEventKind = iota
	OutputFinished
	OutputFailed
)

// OutputEvent is published for every utterance transition.
type OutputEvent struct {
	Kind OutputEventKind
	Text string
	Err  error
	// Fatal marks a setup error such as a missing engine.
	Fatal bool
}

// OutputDriver speaks one utterance at a time and always reports completion.
type OutputDriver struct {
	synth  speech.Synthesizer
	floor  *Floor
	settle time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc

	events     *eventQueue[OutputEvent]
	subscribed atomic.Bool
}

// NewOutputDriver creates a driver. A nil synth is reported as a fatal setup
// error on every Speak.
func NewOutputDriver(synth speech.Synthesizer, floor *Floor, settle time.Duration) *OutputDriver {
	return &OutputDriver{
		synth:  synth,
		floor:  floor,
		settle: settle,
		events: newEventQueue[OutputEvent](64),
	}
}

// Subscribe returns the event stream. Only one subscriber is allowed.
func (d *OutputDriver) Subscribe() (<-chan OutputEvent, error) {
	if !d.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}
	return d.events.ch, nil
}

// Speaking reports whether an utterance currently holds the floor.
func (d *OutputDriver) Speaking() bool {
	return d.floor.Speaking()
}

// Speak stops input capture, cancels any previous utterance and speaks text.
// onComplete runs exactly once: after the settle delay on completion or error,
// immediately when the utterance is superseded or cancelled, even mid-settle.
func (d *OutputDriver) Speak(text string, onComplete func()) {
	var once sync.Once
	complete := func() {
		if onComplete != nil {
			once.Do(onComplete)
		}
	}

	d.floor.takeForSpeech()

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.seq++
	id := d.seq
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	if d.synth == nil {
		d.releaseFloor(id)
		d.finish(id, cancel)
		log.Printf("[voice] speech output unavailable")
		d.publish(OutputEvent{Kind: OutputFailed, Text: text, Err: speech.ErrEngineUnavailable, Fatal: true})
		go complete()
		return
	}

	d.publish(OutputEvent{Kind: OutputStarted, Text: text})

	go func() {
		err := d.synth.Speak(ctx, text)
		superseded := ctx.Err() != nil
		d.releaseFloor(id)

		switch {
		case superseded:
			log.Printf("[voice] utterance cancelled")
			d.finish(id, cancel)
			d.publish(OutputEvent{Kind: OutputFinished, Text: text, Err: context.Canceled})
			complete()
			return
		case err != nil:
			log.Printf("[voice] speech output failed: %v", err)
			d.publish(OutputEvent{Kind: OutputFailed, Text: text, Err: err})
		default:
			d.publish(OutputEvent{Kind: OutputFinished, Text: text})
		}

		// Cancel or a newer utterance cuts the settle short.
		if d.settle > 0 {
			settle := time.NewTimer(d.settle)
			select {
			case <-settle.C:
			case <-ctx.Done():
				settle.Stop()
			}
		}
		d.finish(id, cancel)
		complete()
	}()
}

// Cancel stops the current utterance, if any.
func (d *OutputDriver) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// releaseFloor hands the floor back only when id is still the newest utterance.
func (d *OutputDriver) releaseFloor(id uint64) {
	d.mu.Lock()
	current := d.seq == id
	d.mu.Unlock()
	if current {
		d.floor.releaseSpeech()
	}
}

// finish forgets the utterance and releases its context.
func (d *OutputDriver) finish(id uint64, cancel context.CancelFunc) {
	d.mu.Lock()
	if d.seq == id {
		d.cancel = nil
	}
	d.mu.Unlock()
	cancel()
}

func (d *OutputDriver) publish(ev OutputEvent) {
	d.events.push(ev, false)
}
