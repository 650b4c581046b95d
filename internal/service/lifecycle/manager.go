package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
	model "github.com/zhouzirui/voice-interview/client/internal/model/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/auth"
	"github.com/zhouzirui/voice-interview/client/internal/service/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
	"github.com/zhouzirui/voice-interview/client/internal/service/transport"
	"github.com/zhouzirui/voice-interview/client/internal/service/voice"
)

var (
	// ErrNotLoggedIn means no jwtToken is stored; the channel is never dialed.
	ErrNotLoggedIn = errors.New("lifecycle: no stored session token, run login first")
	// ErrNotBootstrapped is returned by Run before a successful Bootstrap.
	ErrNotBootstrapped = errors.New("lifecycle: bootstrap has not completed")
)

const (
	permissionMessage = "Microphone access was denied. Allow microphone access, then retry."
	microphoneMessage = "The microphone could not be opened. Check the audio device, then retry."
	engineMessage     = "The speech engine could not be started. Check the speech settings, then retry."
)

// EngineFactory builds the speech engines on top of the metered microphone.
type EngineFactory func(source speech.FrameSource) (speech.Synthesizer, speech.Recognizer, error)

// UI is everything the manager needs from the front end.
type UI interface {
	interview.Presenter
	auth.Navigator
	// Bind hands the running controller to the front end for manual actions.
	Bind(controls interview.Controls)
	// WaitRetry blocks until the candidate asks to retry after a blocking error.
	WaitRetry(ctx context.Context) error
	// AskPhone returns the number typed by the candidate, or "" to skip.
	AskPhone(ctx context.Context) (string, error)
	ShowPhoneResult(message string)
}

// PhoneSubmitter stores the candidate mobile number.
type PhoneSubmitter interface {
	SubmitPhone(ctx context.Context, phone string) (bool, error)
}

// Deps are the collaborators of one Manager.
type Deps struct {
	Microphone audio.Microphone
	Engines    EngineFactory
	Store      auth.Store
	Notifier   auth.LogoutNotifier
	Phone      PhoneSubmitter
	UI         UI
}

// Manager owns the microphone, the metering stream, the speech drivers and
// the transport channel for one interview attempt.
type Manager struct {
	cfg  *config.Config
	deps Deps

	mu      sync.Mutex
	meter   *audio.Meter
	channel *transport.Channel
	output  *voice.OutputDriver
	input   *voice.InputDriver
}

// NewManager creates an idle manager.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	return &Manager{cfg: cfg, deps: deps}
}

// Bootstrap acquires the microphone, starts metering and builds the drivers.
// On failure everything acquired so far is released.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meter != nil {
		return nil
	}

	stream, err := m.deps.Microphone.Open(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			m.deps.UI.ShowBlockingError(permissionMessage)
		} else {
			m.deps.UI.ShowBlockingError(microphoneMessage)
		}
		return fmt.Errorf("open microphone: %w", err)
	}
	meter := audio.NewMeter(stream)
	log.Printf("[lifecycle] microphone open at %d Hz", meter.SampleRate())

	synth, rec, err := m.deps.Engines(meter)
	if err != nil {
		meter.Close()
		m.deps.UI.ShowBlockingError(engineMessage)
		return fmt.Errorf("build speech engines: %w", err)
	}

	ic := m.cfg.Interview
	floor := voice.NewFloor()
	m.meter = meter
	m.output = voice.NewOutputDriver(synth, floor, ic.SettleDelay)
	m.input = voice.NewInputDriver(rec, floor, voice.InputConfig{
		SilenceTimeout: ic.SilenceTimeout,
		MaxRestarts:    ic.MaxRestarts,
		RestartDelay:   ic.RestartDelay,
	})
	m.channel = transport.NewChannel(transport.Options{
		URL:         m.cfg.Client.WebSocketURL,
		AuthFailure: auth.NewForcedLogout(m.deps.Store, m.deps.Notifier, m.deps.UI),
	})
	return nil
}

// Start bootstraps, waiting for a retry from the UI after every failure.
// It returns nil once bootstrap succeeds, or the error that ended the wait.
func (m *Manager) Start(ctx context.Context) error {
	for {
		err := m.Bootstrap(ctx)
		if err == nil {
			return nil
		}
		log.Printf("[lifecycle] bootstrap failed: %v", err)
		if err := m.deps.UI.WaitRetry(ctx); err != nil {
			return fmt.Errorf("waiting for retry: %w", err)
		}
		log.Printf("[lifecycle] retrying bootstrap")
	}
}

// Level is the current microphone level in 0..1, zero when not bootstrapped.
func (m *Manager) Level() float64 {
	m.mu.Lock()
	meter := m.meter
	m.mu.Unlock()
	if meter == nil {
		return 0
	}
	return meter.Level()
}

// Teardown stops capture and output, closes the channel and releases the
// microphone. It is safe to call any number of times.
func (m *Manager) Teardown() {
	m.mu.Lock()
	input, output, meter, channel := m.input, m.output, m.meter, m.channel
	m.input, m.output, m.meter, m.channel = nil, nil, nil, nil
	m.mu.Unlock()

	if input != nil {
		input.ForceStop()
	}
	if output != nil {
		output.Cancel()
	}
	if meter != nil {
		if err := meter.Close(); err != nil {
			log.Printf("[lifecycle] releasing microphone: %v", err)
		}
	}
	if channel != nil {
		if err := channel.Close(); err != nil {
			log.Printf("[lifecycle] closing channel: %v", err)
		}
	}
	if meter != nil {
		log.Printf("[lifecycle] audio resources released")
	}
}

// Run connects with the stored token, drives the interview to its end and
// then offers mobile number capture. Resources are torn down on every path.
func (m *Manager) Run(ctx context.Context) (interview.EndReason, error) {
	defer m.Teardown()

	m.mu.Lock()
	channel, output, input := m.channel, m.output, m.input
	m.mu.Unlock()
	if channel == nil {
		return interview.EndCancelled, ErrNotBootstrapped
	}

	token, ok := m.deps.Store.Get(auth.KeyJWT)
	if !ok || token == "" {
		return interview.EndCancelled, ErrNotLoggedIn
	}

	session := model.Session{ID: uuid.New().String(), Token: token, CreatedAt: time.Now()}
	ctl := interview.NewController(session, channel, output, input, m.deps.UI, interview.Options{
		ArmDelay:     m.cfg.Interview.ArmDelay,
		ClosureGrace: m.cfg.Interview.ClosureGrace,
	})
	input.BindGate(ctl)
	m.deps.UI.Bind(ctl)

	if err := channel.Connect(ctx, token); err != nil {
		return interview.EndCancelled, fmt.Errorf("connect interview channel: %w", err)
	}

	reason, err := ctl.Run(ctx)
	if err != nil {
		return reason, err
	}
	log.Printf("[lifecycle] session %s finished: %s, %d turns", session.ID, reason, len(ctl.Transcript().Turns()))

	// audio is no longer needed while the candidate types a number
	m.Teardown()
	if reason == interview.EndCompleted {
		m.capturePhone(ctx)
	}
	return reason, nil
}

func (m *Manager) capturePhone(ctx context.Context) {
	if m.deps.Phone == nil {
		return
	}
	for {
		phone, err := m.deps.UI.AskPhone(ctx)
		if err != nil {
			log.Printf("[lifecycle] phone prompt aborted: %v", err)
			return
		}
		phone = strings.TrimSpace(phone)
		if phone == "" {
			return
		}

		accepted, err := m.deps.Phone.SubmitPhone(ctx, phone)
		switch {
		case errors.Is(err, auth.ErrInvalidPhone):
			m.deps.UI.ShowPhoneResult("Please enter a valid 10-digit mobile number.")
			continue
		case err != nil:
			log.Printf("[lifecycle] submitting phone failed: %v", err)
			m.deps.UI.ShowPhoneResult("Could not save your mobile number. Please try again later.")
			return
		case !accepted:
			m.deps.UI.ShowPhoneResult("This mobile number already exists.")
			continue
		}
		m.deps.UI.ShowPhoneResult("Mobile number saved. Thank you!")
		return
	}
}
