package interview

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
	"github.com/zhouzirui/voice-interview/client/pkg/utils"
)

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// DefaultQuestions is used when no script is configured.
var DefaultQuestions = []string{
	"Tell me about yourself.",
	"Describe a project you are proud of.",
	"Why do you want this role?",
}

type questionFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type answerFrame struct {
	Answer string `json:"answer"`
}

// Handler serves the scripted interview socket.
type Handler struct {
	accounts  *accounts.Service
	questions []string
	monitor   *Monitor
	upgrader  websocket.Upgrader
}

// New creates an interview handler. An empty script falls back to DefaultQuestions.
func New(svc *accounts.Service, questions []string, monitor *Monitor) *Handler {
	if len(questions) == 0 {
		questions = DefaultQuestions
	}
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &Handler{
		accounts:  svc,
		questions: questions,
		monitor:   monitor,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册面试相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/interview", h.handleWebSocket)
	r.Get("/api/interview/events", h.monitor.ServeHTTP)
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return utils.BearerToken(r)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[interview] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	acct, err := h.accounts.Authenticate(r.Context(), requestToken(r))
	if err != nil {
		log.Printf("[interview] rejecting connection: %v", err)
		h.write(conn, errorFrame{Type: "error", Message: "Authentication failed"})
		h.closeWith(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	sessionID := uuid.NewString()
	log.Printf("[interview] session %s started for %s", sessionID, acct.Email)
	h.monitor.Publish(Activity{Type: "connected", SessionID: sessionID, Text: acct.Email})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go h.pingLoop(ctx, conn)

	next := 0
	ask := func() {
		question := h.questions[next]
		next++
		h.monitor.Publish(Activity{Type: "question", SessionID: sessionID, Text: question})
		h.write(conn, questionFrame{Type: "interview_data", Content: question})
	}
	ask()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[interview] read error: %v", err)
			}
			h.monitor.Publish(Activity{Type: "disconnected", SessionID: sessionID})
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var answer answerFrame
		if err := sonic.Unmarshal(data, &answer); err != nil || strings.TrimSpace(answer.Answer) == "" {
			log.Printf("[interview] ignoring malformed frame (%d bytes)", len(data))
			continue
		}
		h.monitor.Publish(Activity{Type: "answer", SessionID: sessionID, Text: answer.Answer})

		if next >= len(h.questions) {
			log.Printf("[interview] session %s completed", sessionID)
			h.monitor.Publish(Activity{Type: "completed", SessionID: sessionID})
			h.closeWith(conn, websocket.CloseNormalClosure, "interview complete")
			return
		}
		ask()
	}
}

func (h *Handler) write(conn *websocket.Conn, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("[interview] encode frame failed: %v", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("[interview] write failed: %v", err)
	}
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
