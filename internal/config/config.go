package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 聚合客户端、开发服务器以及语音引擎的配置项。
type Config struct {
	Server    ServerConfig
	Client    ClientConfig
	Interview InterviewConfig
	Speech    SpeechConfig
	Audio     AudioConfig
}

// Load 先读取可选的 TOML 文件，再用环境变量覆盖。
func Load() (*Config, error) {
	file, err := loadFileConfig(strings.TrimSpace(os.Getenv("INTERVIEW_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig(file)
	if err != nil {
		return nil, err
	}

	interview, err := loadInterviewConfig(file)
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Client:    client,
		Interview: interview,
		Speech:    speech,
		Audio:     loadAudioConfig(file),
	}, nil
}

// ServerConfig 描述开发用 HTTP 服务配置。
type ServerConfig struct {
	Addr      string
	Questions []string
	// DevEmail / DevPassword 是开发服务器预置的候选人账号。
	DevEmail    string
	DevPassword string
	// DatabaseURL 非空时账号存入 PostgreSQL，否则保存在内存中。
	DatabaseURL string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", file.Server.Port)
	if port == "" {
		port = "8080"
	}

	questions := file.Server.Questions
	if raw := strings.TrimSpace(os.Getenv("DEVSERVER_QUESTIONS")); raw != "" {
		questions = splitList(raw, "|")
	}

	cfg := ServerConfig{
		Addr:        port,
		Questions:   questions,
		DevEmail:    getEnvOrDefault("DEVSERVER_EMAIL", orDefault(file.Server.DevEmail, "candidate@example.com")),
		DevPassword: getEnvOrDefault("DEVSERVER_PASSWORD", orDefault(file.Server.DevPassword, "interview")),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", file.Server.DatabaseURL),
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// ClientConfig 描述候选人客户端访问后端所需的地址与凭证存储位置。
type ClientConfig struct {
	APIBaseURL      string
	WebSocketURL    string
	CredentialsFile string
	RequestTimeout  time.Duration
}

func loadClientConfig(file fileConfig) (ClientConfig, error) {
	apiBase := getEnvOrDefault("API_BASE_URL", orDefault(file.Client.APIBaseURL, "http://localhost:8080/"))
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}

	timeout, err := parseDurationEnv("API_TIMEOUT", orDefault(file.Client.RequestTimeout, "15s"))
	if err != nil {
		return ClientConfig{}, err
	}

	credentials := getEnvOrDefault("CREDENTIALS_FILE", file.Client.CredentialsFile)
	if credentials == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		credentials = filepath.Join(dir, "voice-interview", "credentials.json")
	}

	return ClientConfig{
		APIBaseURL:      apiBase,
		WebSocketURL:    getEnvOrDefault("INTERVIEW_WS_URL", orDefault(file.Client.WebSocketURL, websocketURLFor(apiBase))),
		CredentialsFile: credentials,
		RequestTimeout:  timeout,
	}, nil
}

// websocketURLFor 由 REST 地址推导 /ws/interview 端点。
func websocketURLFor(apiBase string) string {
	base := strings.TrimSuffix(apiBase, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/interview"
}

// InterviewConfig 描述轮次控制相关的时间参数。
type InterviewConfig struct {
	// Constrained 表示移动端等受限环境，使用更短的静音判停与更多的重启次数。
	Constrained    bool
	SilenceTimeout time.Duration
	MaxRestarts    int
	RestartDelay   time.Duration
	SettleDelay    time.Duration
	ArmDelay       time.Duration
	ClosureGrace   time.Duration
}

// DefaultInterviewConfig 返回与运行环境匹配的默认时间参数。
func DefaultInterviewConfig(constrained bool) InterviewConfig {
	cfg := InterviewConfig{
		Constrained:    constrained,
		SilenceTimeout: 1500 * time.Millisecond,
		MaxRestarts:    3,
		RestartDelay:   500 * time.Millisecond,
		SettleDelay:    300 * time.Millisecond,
		ArmDelay:       500 * time.Millisecond,
		ClosureGrace:   6 * time.Second,
	}
	if constrained {
		cfg.SilenceTimeout = 1200 * time.Millisecond
		cfg.MaxRestarts = 5
		cfg.RestartDelay = 300 * time.Millisecond
	}
	return cfg
}

func loadInterviewConfig(file fileConfig) (InterviewConfig, error) {
	defaultConstrained := runtime.GOOS == "android" || runtime.GOOS == "ios"
	if file.Interview.Constrained != nil {
		defaultConstrained = *file.Interview.Constrained
	}

	constrained, err := parseBoolEnv("INTERVIEW_CONSTRAINED", defaultConstrained)
	if err != nil {
		return InterviewConfig{}, err
	}

	cfg := DefaultInterviewConfig(constrained)
	fc := file.Interview

	durations := []struct {
		key      string
		fallback string
		target   *time.Duration
	}{
		{"INTERVIEW_SILENCE_TIMEOUT", fc.SilenceTimeout, &cfg.SilenceTimeout},
		{"INTERVIEW_RESTART_DELAY", fc.RestartDelay, &cfg.RestartDelay},
		{"INTERVIEW_SETTLE_DELAY", fc.SettleDelay, &cfg.SettleDelay},
		{"INTERVIEW_ARM_DELAY", fc.ArmDelay, &cfg.ArmDelay},
		{"INTERVIEW_CLOSURE_GRACE", fc.ClosureGrace, &cfg.ClosureGrace},
	}
	for _, d := range durations {
		value, err := parseDurationEnv(d.key, orDefault(d.fallback, d.target.String()))
		if err != nil {
			return InterviewConfig{}, err
		}
		*d.target = value
	}

	if fc.MaxRestarts != nil {
		cfg.MaxRestarts = *fc.MaxRestarts
	}
	if override, err := parseOptionalIntEnv("INTERVIEW_MAX_RESTARTS"); err != nil {
		return InterviewConfig{}, err
	} else if override != nil {
		cfg.MaxRestarts = *override
	}
	if cfg.MaxRestarts < 0 {
		cfg.MaxRestarts = 0
	}

	return cfg, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	// Engine 取值 console 或 volcengine。
	Engine         string
	AppID          string
	AccessToken    string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Region         string
	BaseURL        string
	ConcurrentMode bool
	ASRModel       string
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        int
	Enabled        bool
}

func loadSpeechConfig(file fileConfig) (SpeechConfig, error) {
	fc := file.Speech

	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0) // 默认1.0倍速
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0) // 默认1.0音量
	if volume != nil {
		ttsVolume = *volume
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", fc.ConcurrentMode)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := getEnvOrDefault("SPEECH_APP_ID", fc.AppID)
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	accessToken := getEnvOrDefault("SPEECH_ACCESS_TOKEN", fc.AccessToken)
	if accessToken == "" {
		accessToken = apiKey
	}

	enabled := appID != "" && accessToken != ""

	engine := strings.ToLower(getEnvOrDefault("SPEECH_ENGINE", fc.Engine))
	if engine == "" {
		engine = "console"
		if enabled {
			engine = "volcengine"
		}
	}
	if engine != "console" && engine != "volcengine" {
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_ENGINE value %q", engine)
	}

	return SpeechConfig{
		Engine:         engine,
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		AccessKey:      strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY")),
		Region:         getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", ""),
		ConcurrentMode: concurrent,
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", ""),
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", orDefault(fc.ASRLanguage, "en-US")),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", fc.TTSVoice),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", orDefault(fc.TTSLanguage, "en-US")),
		Timeout:        timeoutSeconds,
		Enabled:        enabled,
	}, nil
}

// AudioConfig 描述麦克风与扬声器的来源。
type AudioConfig struct {
	// Input 取值 none、wav 或 portaudio。
	Input     string
	InputFile string
	// Output 取值 none、wav 或 portaudio。
	Output    string
	OutputDir string
}

func loadAudioConfig(file fileConfig) AudioConfig {
	return AudioConfig{
		Input:     strings.ToLower(getEnvOrDefault("AUDIO_INPUT", orDefault(file.Audio.Input, "none"))),
		InputFile: getEnvOrDefault("AUDIO_INPUT_FILE", file.Audio.InputFile),
		Output:    strings.ToLower(getEnvOrDefault("AUDIO_OUTPUT", orDefault(file.Audio.Output, "none"))),
		OutputDir: getEnvOrDefault("AUDIO_OUTPUT_DIR", orDefault(file.Audio.OutputDir, os.TempDir())),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitList(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key, defaultValue string) (time.Duration, error) {
	raw := getEnvOrDefault(key, defaultValue)
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

// fileConfig 对应可选 TOML 配置文件的结构，所有字段均可省略。
type fileConfig struct {
	Server struct {
		Port        string   `toml:"port"`
		Questions   []string `toml:"questions"`
		DevEmail    string   `toml:"dev_email"`
		DevPassword string   `toml:"dev_password"`
		DatabaseURL string   `toml:"database_url"`
	} `toml:"server"`
	Client struct {
		APIBaseURL      string `toml:"api_base_url"`
		WebSocketURL    string `toml:"websocket_url"`
		CredentialsFile string `toml:"credentials_file"`
		RequestTimeout  string `toml:"request_timeout"`
	} `toml:"client"`
	Interview struct {
		Constrained    *bool  `toml:"constrained"`
		SilenceTimeout string `toml:"silence_timeout"`
		MaxRestarts    *int   `toml:"max_restarts"`
		RestartDelay   string `toml:"restart_delay"`
		SettleDelay    string `toml:"settle_delay"`
		ArmDelay       string `toml:"arm_delay"`
		ClosureGrace   string `toml:"closure_grace"`
	} `toml:"interview"`
	Speech struct {
		Engine         string `toml:"engine"`
		AppID          string `toml:"app_id"`
		AccessToken    string `toml:"access_token"`
		ConcurrentMode bool   `toml:"concurrent_mode"`
		ASRLanguage    string `toml:"asr_language"`
		TTSVoice       string `toml:"tts_voice"`
		TTSLanguage    string `toml:"tts_language"`
	} `toml:"speech"`
	Audio struct {
		Input     string `toml:"input"`
		InputFile string `toml:"input_file"`
		Output    string `toml:"output"`
		OutputDir string `toml:"output_dir"`
	} `toml:"audio"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fileConfig{}, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}
	return cfg, nil
}
