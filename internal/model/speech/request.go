package speech

// TTSRequest 一次语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // 声音类型
	Speed     float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"`   // 音量 0.0-1.0
	Format    string  `json:"format"`   // pcm, mp3
	Language  string  `json:"language"` // en-US, zh-CN
	// SampleRate 仅对 pcm 生效
	SampleRate int `json:"sampleRate"`
}

// ASRSession 一次流式识别会话的参数
type ASRSession struct {
	SessionID  string `json:"sessionId"`
	Language   string `json:"language"`
	SampleRate int    `json:"sampleRate"`
}
