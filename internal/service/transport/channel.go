package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

var (
	// ErrMissingToken is returned when Connect is called without a credential.
	ErrMissingToken = errors.New("transport: token is required")
	// ErrNotOpen is returned when Send is called on a channel that is not open.
	ErrNotOpen = errors.New("transport: channel is not open")
	// ErrAlreadySubscribed is returned by a second call to Subscribe.
	ErrAlreadySubscribed = errors.New("transport: events already subscribed")
)

const (
	defaultPingInterval = 54 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultEventBuffer  = 256
	authFailureTimeout  = 10 * time.Second
	defaultEmitTimeout  = 30 * time.Second
)

// State reports the connection phase.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

// EventKind enumerates what the channel publishes to its subscriber.
type EventKind int

const (
	EventOpen EventKind = iota
	EventPrompt
	EventClosed
	EventError
	EventAuthFailed
)

// Event is published on the subscription channel.
type Event struct {
	Kind   EventKind
	Prompt string
	Err    error
	// Code is the websocket close code for EventClosed, zero when unknown.
	Code int
	// Local is set on EventClosed when Close was called by this process.
	Local bool
}

// AuthFailureHandler performs the forced logout triggered by the server.
type AuthFailureHandler interface {
	HandleAuthFailure(ctx context.Context)
}

// Options configures a Channel.
type Options struct {
	URL          string
	Dialer       *websocket.Dialer
	AuthFailure  AuthFailureHandler
	PingInterval time.Duration
	ReadTimeout  time.Duration
	// EmitTimeout bounds how long a full event buffer may block the socket goroutines.
	EmitTimeout time.Duration
}

// Channel owns at most one authenticated websocket to the interview endpoint.
// Reconnection policy belongs to the caller.
type Channel struct {
	endpoint     string
	dialer       *websocket.Dialer
	authFailure  AuthFailureHandler
	pingInterval time.Duration
	readTimeout  time.Duration
	emitTimeout  time.Duration

	mu    sync.Mutex
	state State
	link  *link
	gen   uint64

	events     chan Event
	subscribed atomic.Bool
}

// link is one live socket plus its goroutines.
type link struct {
	conn       *websocket.Conn
	cancel     context.CancelFunc
	writeMu    sync.Mutex
	local      atomic.Bool
	authFailed atomic.Bool
}

// NewChannel builds a closed channel for the given endpoint.
func NewChannel(opts Options) *Channel {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		}
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	read := opts.ReadTimeout
	if read <= 0 {
		read = defaultReadTimeout
	}
	emitTimeout := opts.EmitTimeout
	if emitTimeout <= 0 {
		emitTimeout = defaultEmitTimeout
	}

	return &Channel{
		endpoint:     opts.URL,
		dialer:       dialer,
		authFailure:  opts.AuthFailure,
		pingInterval: ping,
		readTimeout:  read,
		emitTimeout:  emitTimeout,
		events:       make(chan Event, defaultEventBuffer),
	}
}

// Subscribe returns the event stream. Only one subscriber is allowed.
func (c *Channel) Subscribe() (<-chan Event, error) {
	if !c.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}
	return c.events, nil
}

// State returns the current connection phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint with token attached. It is a no-op while a
// connection is open or being opened.
func (c *Channel) Connect(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		log.Printf("[transport] connect skipped: no token supplied")
		return ErrMissingToken
	}

	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		log.Printf("[transport] connect ignored: channel already open or connecting")
		return nil
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	target, err := endpointWithToken(c.endpoint, token)
	if err != nil {
		c.resetConnecting(gen)
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		c.resetConnecting(gen)
		if resp != nil {
			err = fmt.Errorf("dial interview endpoint (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("dial interview endpoint: %w", err)
		}
		log.Printf("[transport] %v", err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &link{conn: conn, cancel: cancel}

	c.mu.Lock()
	if c.gen != gen {
		// Close was called while dialing.
		c.mu.Unlock()
		cancel()
		conn.Close()
		log.Printf("[transport] connection discarded: closed during dial")
		return nil
	}
	c.link = l
	c.state = StateOpen
	c.mu.Unlock()

	log.Printf("[transport] connected to %s", c.endpoint)
	c.emit(Event{Kind: EventOpen})

	go c.readLoop(l)
	go c.pingLoop(linkCtx, l)
	return nil
}

// Send marshals v and writes it as a text frame. Frames are never queued.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	l := c.link
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || l == nil {
		log.Printf("[transport] send failed: channel not open")
		return ErrNotOpen
	}

	payload, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[transport] send failed: %v", err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SendAnswer submits one finalized answer.
func (c *Channel) SendAnswer(answer string) error {
	return c.Send(AnswerFrame{Answer: answer})
}

// Close terminates the connection and allows a later Connect.
func (c *Channel) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.state = StateClosed
	c.gen++
	c.mu.Unlock()

	if l == nil {
		return nil
	}

	l.local.Store(true)
	l.writeMu.Lock()
	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	l.writeMu.Unlock()

	l.cancel()
	if err := l.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (c *Channel) resetConnecting(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == StateConnecting {
		c.state = StateClosed
	}
}

// detach clears l if it is still the active link.
func (c *Channel) detach(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
		c.state = StateClosed
	}
	c.mu.Unlock()
	l.cancel()
	l.conn.Close()
}

func (c *Channel) readLoop(l *link) {
	var closeErr error
	defer func() {
		c.detach(l)
		ev := Event{Kind: EventClosed, Local: l.local.Load(), Err: closeErr}
		var ce *websocket.CloseError
		if errors.As(closeErr, &ce) {
			ev.Code = ce.Code
		}
		log.Printf("[transport] connection closed (local=%v code=%d)", ev.Local, ev.Code)
		c.emit(ev)
	}()

	l.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if !l.local.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[transport] read error: %v", err)
			}
			closeErr = err
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		frame := ParseFrame(data)
		switch frame.Kind {
		case FrameAuthFailure:
			if l.authFailed.CompareAndSwap(false, true) {
				log.Printf("[transport] server reported authentication failure")
				// logout finishes before the subscriber hears about it; Close must not cut it short
				if c.authFailure != nil {
					authCtx, cancel := context.WithTimeout(context.Background(), authFailureTimeout)
					c.authFailure.HandleAuthFailure(authCtx)
					cancel()
				}
				c.emit(Event{Kind: EventAuthFailed})
			}
			closeErr = errors.New("authentication failed")
			return
		case FramePrompt:
			c.emit(Event{Kind: EventPrompt, Prompt: frame.Content})
		default:
			log.Printf("[transport] ignoring unrecognised frame (%d bytes)", len(data))
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context, l *link) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			l.writeMu.Unlock()
			if err != nil {
				log.Printf("[transport] ping failed: %v", err)
				return
			}
		}
	}
}

// emit publishes an event. Only EventError may be dropped on a full buffer;
// everything else waits up to emitTimeout for the subscriber.
func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	if ev.Kind == EventError {
		log.Printf("[transport] event buffer full, dropping error event: %v", ev.Err)
		return
	}

	timer := time.NewTimer(c.emitTimeout)
	defer timer.Stop()
	select {
	case c.events <- ev:
	case <-timer.C:
		log.Printf("[transport] subscriber stalled, dropping event kind=%d after %s", ev.Kind, c.emitTimeout)
	}
}

func endpointWithToken(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse interview endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
