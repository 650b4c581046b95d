package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
	speechmodel "github.com/zhouzirui/voice-interview/client/internal/model/speech"
)

const (
	asrStreamURL      = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"
	asrChunkDuration  = 200 * time.Millisecond
	defaultIdleWindow = 8 * time.Second
	asrSuccessCode    = 20000000
)

// FrameSource 提供麦克风帧，通常是 audio.Meter。
type FrameSource interface {
	Frames() <-chan []int16
	SampleRate() int
}

// VolcengineRecognizer 火山引擎双向流式识别，实现 Recognizer。
type VolcengineRecognizer struct {
	config config.SpeechConfig
	source FrameSource
	dial   DialOptions
	url    string

	// IdleWindow 内没有任何识别结果时结束会话，对应浏览器的 no-speech。
	IdleWindow time.Duration

	mu      sync.Mutex
	running bool
}

type asrServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

// ASRRequest 火山引擎ASR请求结构（按文档格式）
type ASRRequest struct {
	User struct {
		UID      string `json:"uid,omitempty"`
		Platform string `json:"platform,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

// NewVolcengineRecognizer 创建识别器；source 在多次会话间复用。
func NewVolcengineRecognizer(cfg config.SpeechConfig, source FrameSource) *VolcengineRecognizer {
	url := asrStreamURL
	if cfg.BaseURL != "" {
		url = strings.TrimRight(cfg.BaseURL, "/") + "/api/v3/sauc/bigmodel_async"
	}
	return &VolcengineRecognizer{
		config:     cfg,
		source:     source,
		dial:       DefaultDialOptions(),
		url:        url,
		IdleWindow: defaultIdleWindow,
	}
}

// Start 建立一次识别会话，ctx 取消后发送尾包并关闭结果 channel。
func (r *VolcengineRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	if r.source == nil {
		return nil, NewRecognitionError(CodeAudioCapture, audio.ErrNoDevice)
	}
	appID, token, err := resolveCredentials(r.config)
	if err != nil {
		return nil, NewRecognitionError(CodeServiceNotAllowed, err)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, NewRecognitionError(CodeAborted, errors.New("recognition session already running"))
	}
	r.running = true
	r.mu.Unlock()

	session := speechmodel.ASRSession{
		SessionID:  uuid.New().String(),
		Language:   r.config.ASRLanguage,
		SampleRate: audio.CaptureSampleRate,
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	resourceID := "volc.bigasr.sauc.duration"
	if r.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", session.SessionID)

	conn, resp, err := dialWithRetry(ctx, r.dial, r.url, header)
	if err != nil {
		r.release()
		return nil, NewRecognitionError(classifyError(err), err)
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[ASR] connected with logid: %s", logid)
		}
	}

	payload, err := sonic.Marshal(buildASRRequest(session))
	if err != nil {
		conn.Close()
		r.release()
		return nil, fmt.Errorf("marshal ASR request: %w", err)
	}
	first, err := encodeRequest(payload, GzipCompression)
	if err == nil {
		err = conn.WriteMessage(websocket.BinaryMessage, first)
	}
	if err != nil {
		conn.Close()
		r.release()
		return nil, NewRecognitionError(CodeNetwork, fmt.Errorf("send ASR request: %w", err))
	}

	drain(r.source.Frames())

	events := make(chan RecognitionEvent, 32)
	go r.run(ctx, conn, session, events)
	return events, nil
}

func (r *VolcengineRecognizer) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *VolcengineRecognizer) run(ctx context.Context, conn *websocket.Conn, session speechmodel.ASRSession, events chan<- RecognitionEvent) {
	defer r.release()

	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	activity := make(chan struct{}, 1)
	recvErr := make(chan error, 1)
	sendErr := make(chan error, 1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		recvErr <- r.receive(sessionCtx, conn, events, activity)
	}()
	go func() {
		defer wg.Done()
		sendErr <- r.send(sessionCtx, conn)
	}()

	// 先停止发送（尾包），再关闭连接让接收协程退出，最后关闭结果 channel。
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
		close(events)
	}()

	idle := time.NewTimer(r.IdleWindow)
	defer idle.Stop()
	heard := false

	for {
		select {
		case <-activity:
			heard = true
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.IdleWindow)
		case <-idle.C:
			if !heard {
				log.Printf("[ASR] session %s: no speech detected", session.SessionID)
				emit(ctx, events, RecognitionEvent{Err: NewRecognitionError(CodeNoSpeech, nil)})
			}
			return
		case err := <-sendErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				emit(ctx, events, RecognitionEvent{Err: NewRecognitionError(CodeNetwork, err)})
			}
			return
		case err := <-recvErr:
			if err != nil && ctx.Err() == nil {
				emit(ctx, events, RecognitionEvent{Err: NewRecognitionError(classifyError(err), err)})
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// send 把麦克风帧按 200ms 一包推给服务端，ctx 结束时发送尾包。
func (r *VolcengineRecognizer) send(ctx context.Context, conn *websocket.Conn) error {
	rate := r.source.SampleRate()
	chunkSamples := audio.CaptureSampleRate * int(asrChunkDuration/time.Millisecond) / 1000
	pending := make([]int16, 0, chunkSamples)
	sequence := int32(2) // 首帧占用序号1

	write := func(samples []int16, last bool) error {
		compressed, err := CompressPayload(audio.SamplesToBytes(samples), GzipCompression)
		if err != nil {
			return err
		}
		data, err := EncodeMessage(CreateAudioOnlyRequest(compressed, sequence, last, GzipCompression))
		if err != nil {
			return err
		}
		sequence++
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}

	for {
		select {
		case <-ctx.Done():
			_ = write(pending, true)
			return ctx.Err()
		case frame, ok := <-r.source.Frames():
			if !ok {
				return write(pending, true)
			}
			if rate != audio.CaptureSampleRate {
				frame = audio.Resample(frame, rate, audio.CaptureSampleRate)
			}
			pending = append(pending, frame...)
			for len(pending) >= chunkSamples {
				if err := write(pending[:chunkSamples], false); err != nil {
					return fmt.Errorf("send audio chunk: %w", err)
				}
				pending = append(pending[:0], pending[chunkSamples:]...)
			}
		}
	}
}

// receive 解析服务端结果：definite 分句作为最终片段，其余作为临时结果。
func (r *VolcengineRecognizer) receive(ctx context.Context, conn *websocket.Conn, events chan<- RecognitionEvent, activity chan<- struct{}) error {
	finalized := 0
	lastInterim := ""

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read ASR response: %w", err)
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := DecompressPayload(msg.Payload, msg.Header.Compression)
			return fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.Compression)
			if err != nil {
				return fmt.Errorf("decompress ASR payload: %w", err)
			}
			var resp asrServerMessage
			if err := sonic.Unmarshal(payload, &resp); err != nil {
				log.Printf("[ASR] failed to unmarshal response: %v", err)
				continue
			}
			if resp.Code != 0 && resp.Code != asrSuccessCode {
				return fmt.Errorf("ASR API error %d: %s", resp.Code, resp.Message)
			}

			segments, interim := splitUtterances(resp.Result.Utterances, finalized)
			for _, text := range segments {
				finalized++
				lastInterim = ""
				if !emit(ctx, events, RecognitionEvent{Text: text, Final: true}) {
					return nil
				}
			}
			if interim != "" && interim != lastInterim {
				lastInterim = interim
				if !emit(ctx, events, RecognitionEvent{Text: interim}) {
					return nil
				}
			}
			if len(segments) > 0 || interim != "" {
				select {
				case activity <- struct{}{}:
				default:
				}
			}
			if msg.IsLastPacket() {
				return nil
			}
		}
	}
}

// splitUtterances 返回 from 之后新出现的确定分句，以及当前未确定的文本。
func splitUtterances(utterances []asrUtterance, from int) ([]string, string) {
	var finals []string
	var interim []string
	for i, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if i < from || text == "" {
			continue
		}
		if u.Definite && len(interim) == 0 {
			finals = append(finals, text)
			continue
		}
		interim = append(interim, text)
	}
	return finals, strings.Join(interim, " ")
}

func buildASRRequest(session speechmodel.ASRSession) *ASRRequest {
	req := &ASRRequest{}
	req.User.UID = session.SessionID
	req.User.Platform = "voice-interview"

	req.Audio.Format = "pcm"
	req.Audio.Language = session.Language
	if req.Audio.Language == "" {
		req.Audio.Language = "en-US"
	}
	req.Audio.Codec = "raw"
	req.Audio.Rate = session.SampleRate
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

func emit(ctx context.Context, events chan<- RecognitionEvent, ev RecognitionEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain 丢弃上一轮遗留的帧，避免把提问语音送去识别。
func drain(frames <-chan []int16) {
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
