package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	model "github.com/zhouzirui/voice-interview/client/internal/model/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

const helpText = `Commands:
  /listen   start listening again
  /retry    retry after an error
  /level    show the microphone level
  /quit     leave the interview
Any other line is sent as your answer while it is your turn.`

// Console renders the interview in a terminal and turns typed lines into
// answers or commands.
type Console struct {
	out io.Writer

	// Recognizer receives typed lines while it is listening, if set.
	Recognizer *speech.ConsoleRecognizer
	// EchoPrompts prints each question; off when the synthesizer already does.
	EchoPrompts bool
	// Level reports the microphone level for /level.
	Level func() float64
	// Quit is called on /quit.
	Quit func()

	mu       sync.Mutex
	controls interview.Controls
	phone    chan string
	retry    chan struct{}
	eof      chan struct{}
	eofOnce  sync.Once
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:         out,
		EchoPrompts: true,
		eof:         make(chan struct{}),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Bind installs the controller used for manual actions.
func (c *Console) Bind(controls interview.Controls) {
	c.mu.Lock()
	c.controls = controls
	c.mu.Unlock()
}

func (c *Console) ShowState(state model.TurnState) {
	if state.Terminal() {
		return
	}
	if msg := state.StatusMessage(); msg != "" {
		c.printf("-- %s\n", msg)
	}
}

func (c *Console) ShowPrompt(turn model.Turn) {
	if c.EchoPrompts {
		c.printf("Interviewer: %s\n", turn.Text)
	}
}

func (c *Console) ShowTranscript(preview string) {
	if preview != "" {
		c.printf("   ... %s\n", preview)
	}
}

func (c *Console) ShowAnswer(turn model.Turn) {
	c.printf("You: %s\n", turn.Text)
}

func (c *Console) ShowNotice(message string) {
	c.printf("! %s\n", message)
}

func (c *Console) ShowBlockingError(message string) {
	c.printf("ERROR: %s\nType /retry to try again.\n", message)
}

func (c *Console) OfferManualAnswer() {
	c.printf("We could not hear you. Type your answer, or /listen to try again.\n")
}

func (c *Console) ShowTerminal() {
	c.printf("Interview complete. Thank you for your time!\n")
}

// NavigateRoot is the forced logout landing.
func (c *Console) NavigateRoot() {
	c.printf("Your session has expired. Please log in again with `interview login`.\n")
}

// WaitRetry blocks until /retry is typed. It returns io.EOF once input ends.
func (c *Console) WaitRetry(ctx context.Context) error {
	retry := make(chan struct{})
	c.mu.Lock()
	c.retry = retry
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.retry == retry {
			c.retry = nil
		}
		c.mu.Unlock()
	}()

	select {
	case <-retry:
		return nil
	case <-c.eof:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AskPhone waits for the next typed line. It returns io.EOF once input ends.
func (c *Console) AskPhone(ctx context.Context) (string, error) {
	answer := make(chan string, 1)
	c.mu.Lock()
	c.phone = answer
	fmt.Fprint(c.out, "Enter your mobile number (blank to skip): ")
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.phone == answer {
			c.phone = nil
		}
		c.mu.Unlock()
	}()

	select {
	case line := <-answer:
		return line, nil
	case <-c.eof:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) ShowPhoneResult(message string) {
	c.printf("%s\n", message)
}

// Serve dispatches lines from in until it is exhausted or ctx is done.
func (c *Console) Serve(ctx context.Context, in io.Reader) {
	defer c.eofOnce.Do(func() { close(c.eof) })

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.HandleLine(line)
		}
	}
}

// HandleLine routes one typed line.
func (c *Console) HandleLine(line string) {
	line = strings.TrimSpace(line)

	c.mu.Lock()
	phone, controls := c.phone, c.controls
	if phone != nil {
		c.phone = nil
	}
	c.mu.Unlock()

	if phone != nil {
		phone <- line
		return
	}
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "/") {
		c.command(line, controls)
		return
	}

	if c.Recognizer != nil && c.Recognizer.Feed(line) {
		return
	}
	if controls == nil || !controls.CanListen() {
		c.printf("Please wait for the next question.\n")
		return
	}
	if err := controls.SubmitManual(line); err != nil {
		c.printf("! %v\n", err)
	}
}

func (c *Console) command(line string, controls interview.Controls) {
	name := strings.ToLower(strings.Fields(line)[0])
	var err error
	switch name {
	case "/listen":
		if controls == nil {
			break
		}
		err = controls.ListenAgain()
	case "/retry":
		c.mu.Lock()
		retry := c.retry
		c.retry = nil
		c.mu.Unlock()
		if retry != nil {
			close(retry)
			break
		}
		if controls == nil {
			break
		}
		err = controls.Retry()
	case "/level":
		level := 0.0
		if c.Level != nil {
			level = c.Level()
		}
		c.printf("Microphone level: %s %.2f\n", meterBar(level, 20), level)
	case "/quit":
		if c.Quit != nil {
			c.Quit()
		}
	case "/help":
		c.printf("%s\n", helpText)
	default:
		c.printf("Unknown command %s, type /help.\n", name)
	}
	if err != nil {
		c.printf("! %v\n", err)
	}
}

func meterBar(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
