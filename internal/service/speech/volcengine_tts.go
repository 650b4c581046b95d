package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
	speechmodel "github.com/zhouzirui/voice-interview/client/internal/model/speech"
)

const (
	ttsStreamURL     = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	ttsSampleRate    = 24000
	defaultTTSVoice  = "en_female_amy_jupiter_bigtts"
	ttsMismatchToken = "resource ID is mismatched with speaker related resource"
)

// ErrEmptyAudio 服务端未返回任何音频。
var ErrEmptyAudio = errors.New("tts audio is empty")

// VolcengineTTSClient 火山引擎TTS WebSocket客户端，只负责取回 PCM。
type VolcengineTTSClient struct {
	config config.SpeechConfig
	dial   DialOptions
	url    string
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(cfg config.SpeechConfig) *VolcengineTTSClient {
	url := ttsStreamURL
	if cfg.BaseURL != "" {
		url = strings.TrimRight(cfg.BaseURL, "/") + "/api/v3/tts/unidirectional/stream"
	}
	return &VolcengineTTSClient{config: cfg, dial: DefaultDialOptions(), url: url}
}

// Synthesize 依次尝试候选音色与资源 ID，返回 16bit 单声道 PCM。
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}
	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	var lastMismatch error
	for _, speaker := range resolveTTSSpeakerCandidates(req.Voice, c.config.TTSVoice) {
		for _, resourceID := range resolveTTSResourceCandidates(speaker) {
			pcm, err := c.synthesizeWith(ctx, req, appKey, accessKey, speaker, resourceID)
			if err == nil {
				return pcm, nil
			}
			if !isResourceMismatchError(err) {
				return nil, err
			}
			log.Printf("[TTS] voice %s resource %s mismatch: %v", speaker, resourceID, err)
			lastMismatch = err
		}
	}
	if lastMismatch != nil {
		return nil, lastMismatch
	}
	return nil, fmt.Errorf("TTS synthesis failed: no compatible speaker")
}

func (c *VolcengineTTSClient) synthesizeWith(ctx context.Context, req *speechmodel.TTSRequest, appKey, accessKey, speaker, resourceID string) ([]byte, error) {
	connectID := uuid.New().String()
	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := dialWithRetry(ctx, c.dial, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("connect TTS: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[TTS] connected with logid: %s", logid)
		}
	}

	// ctx 取消时关闭连接以打断阻塞读。
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := sonic.Marshal(c.buildTTSRequest(req, speaker))
	if err != nil {
		return nil, fmt.Errorf("marshal TTS request: %w", err)
	}
	first, err := encodeRequest(payload, NoCompression)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, first); err != nil {
		return nil, fmt.Errorf("send TTS request: %w", err)
	}

	var pcm bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read TTS response: %w", err)
		}
		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode TTS message: %w", err)
		}
		body, err := DecompressPayload(msg.Payload, msg.Header.Compression)
		if err != nil {
			return nil, fmt.Errorf("decompress TTS payload: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			return nil, fmt.Errorf("TTS error: %s", string(body))
		case AudioOnlyServerResponse:
			pcm.Write(body)
		case FullServerResponse:
			var serverResp ttsServerMessage
			if len(body) > 0 {
				if err := sonic.Unmarshal(body, &serverResp); err != nil {
					log.Printf("[TTS] failed to unmarshal response payload: %v", err)
				} else {
					if serverResp.Code != 0 && serverResp.Code != 3000 && serverResp.Code != asrSuccessCode {
						return nil, fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message)
					}
					if serverResp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(serverResp.Data)
						if err != nil {
							return nil, fmt.Errorf("decode base64 audio chunk: %w", err)
						}
						pcm.Write(chunk)
					}
				}
			}
			finished := msg.hasEvent() && msg.EventType == EventTypeSessionFinished
			if finished || msg.IsLastPacket() || serverResp.Sequence < 0 {
				if pcm.Len() == 0 {
					return nil, ErrEmptyAudio
				}
				return pcm.Bytes(), nil
			}
		}
	}
}

func (c *VolcengineTTSClient) buildTTSRequest(req *speechmodel.TTSRequest, speaker string) *volcengineTTSRequest {
	ttsReq := &volcengineTTSRequest{}
	ttsReq.User.UID = req.SessionID
	if ttsReq.User.UID == "" {
		ttsReq.User.UID = uuid.New().String()
	}
	ttsReq.ReqParams.Speaker = speaker
	ttsReq.ReqParams.Text = req.Text

	ttsReq.ReqParams.AudioParams.Format = "pcm"
	ttsReq.ReqParams.AudioParams.SampleRate = req.SampleRate
	if ttsReq.ReqParams.AudioParams.SampleRate <= 0 {
		ttsReq.ReqParams.AudioParams.SampleRate = ttsSampleRate
	}

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		ttsReq.ReqParams.AudioParams.SpeedRatio = speed
	}
	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		ttsReq.ReqParams.AudioParams.VolumeRatio = volume
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = strings.TrimSpace(c.config.TTSLanguage)
	}
	ttsReq.ReqParams.Language = language
	ttsReq.ReqParams.Additions = `{"disable_markdown_filter":true}`
	return ttsReq
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}
	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// resolveTTSSpeakerCandidates 请求音色优先，其次配置音色，最后默认英文音色。
func resolveTTSSpeakerCandidates(requested, configured string) []string {
	aliases := map[string]string{
		"interviewer":    defaultTTSVoice,
		"interviewer-en": defaultTTSVoice,
		"en_default":     defaultTTSVoice,
	}

	var candidates []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := aliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}
	add(requested)
	add(configured)
	add(defaultTTSVoice)
	return candidates
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), ttsMismatchToken)
}

// VolcengineSynthesizer 合成后通过 audio.Player 播放，实现 Synthesizer。
type VolcengineSynthesizer struct {
	client *VolcengineTTSClient
	player audio.Player
	voice  string
}

// NewVolcengineSynthesizer 创建朗读器；player 为空时只计时不出声。
func NewVolcengineSynthesizer(cfg config.SpeechConfig, player audio.Player) *VolcengineSynthesizer {
	if player == nil {
		player = audio.NullPlayer{}
	}
	return &VolcengineSynthesizer{
		client: NewVolcengineTTSClient(cfg),
		player: player,
		voice:  cfg.TTSVoice,
	}
}

// Speak 阻塞到播放完成。
func (s *VolcengineSynthesizer) Speak(ctx context.Context, text string) error {
	pcm, err := s.client.Synthesize(ctx, &speechmodel.TTSRequest{
		Text:       text,
		Voice:      s.voice,
		SampleRate: ttsSampleRate,
	})
	if err != nil {
		return err
	}
	return s.player.Play(ctx, pcm, ttsSampleRate)
}
