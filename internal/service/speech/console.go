package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// ConsoleSynthesizer 把提问打印到终端，并按字数模拟朗读时长。
type ConsoleSynthesizer struct {
	Out io.Writer
	// PerRune 每个字符的朗读时长，0 表示立即完成。
	PerRune time.Duration
	// MaxDuration 单次朗读的上限。
	MaxDuration time.Duration

	mu sync.Mutex
}

// NewConsoleSynthesizer 默认约等于正常语速。
func NewConsoleSynthesizer(out io.Writer) *ConsoleSynthesizer {
	return &ConsoleSynthesizer{
		Out:         out,
		PerRune:     60 * time.Millisecond,
		MaxDuration: 10 * time.Second,
	}
}

func (s *ConsoleSynthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	fmt.Fprintf(s.Out, "Interviewer: %s\n", text)
	s.mu.Unlock()

	d := time.Duration(utf8.RuneCountInString(text)) * s.PerRune
	if s.MaxDuration > 0 && d > s.MaxDuration {
		d = s.MaxDuration
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ConsoleRecognizer 把键入的每一行当作一个已确定的识别片段。
type ConsoleRecognizer struct {
	mu     sync.Mutex
	active chan RecognitionEvent
	ctx    context.Context
}

// NewConsoleRecognizer 创建键盘识别器，由 Feed 投递输入。
func NewConsoleRecognizer() *ConsoleRecognizer {
	return &ConsoleRecognizer{}
}

// Start 开启会话，直到 ctx 取消。
func (r *ConsoleRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, NewRecognitionError(CodeAborted, fmt.Errorf("console recognition already running"))
	}

	events := make(chan RecognitionEvent, 16)
	r.active = events
	r.ctx = ctx
	go func() {
		<-ctx.Done()
		r.mu.Lock()
		close(events)
		if r.active == events {
			r.active = nil
			r.ctx = nil
		}
		r.mu.Unlock()
	}()
	return events, nil
}

// Feed 投递一行输入；没有进行中的会话时返回 false。
func (r *ConsoleRecognizer) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.ctx.Err() != nil {
		return false
	}
	select {
	case r.active <- RecognitionEvent{Text: line, Final: true}:
		return true
	default:
		return false
	}
}

// Listening 是否有进行中的会话。
func (r *ConsoleRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil && r.ctx.Err() == nil
}
