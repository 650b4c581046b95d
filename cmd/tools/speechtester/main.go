package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
	speechmodel "github.com/zhouzirui/voice-interview/client/internal/model/speech"
	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先在环境变量中配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入 WAV 文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出 WAV 文件路径 (默认自动生成)")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的 TTSVoice")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, cfg.Speech, *audioPath)
	case "tts":
		runTTS(ctx, cfg.Speech, *text, *voice, *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}
}

func runASR(ctx context.Context, cfg config.SpeechConfig, audioPath string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定 WAV 文件路径")
	}

	stream, err := audio.WAVMicrophone{Path: audioPath}.Open(ctx)
	if err != nil {
		log.Fatalf("打开音频文件失败: %v", err)
	}
	defer stream.Close()

	rec := speech.NewVolcengineRecognizer(cfg, stream)
	events, err := rec.Start(ctx)
	if err != nil {
		log.Fatalf("ASR 启动失败: %v", err)
	}

	log.Printf("开始进行 ASR 测试: file=%s language=%s", audioPath, cfg.ASRLanguage)
	for ev := range events {
		switch {
		case ev.Err != nil && ev.Err.Code == speech.CodeNoSpeech:
			log.Printf("ASR 会话结束: 未检测到新的语音")
		case ev.Err != nil:
			log.Fatalf("ASR 调用失败: %v", ev.Err)
		case ev.Final:
			log.Printf("ASR 确定片段: %q", ev.Text)
		default:
			log.Printf("ASR 临时结果: %q", ev.Text)
		}
	}
}

func runTTS(ctx context.Context, cfg config.SpeechConfig, text, voice, outputPath string) {
	if text == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	client := speech.NewVolcengineTTSClient(cfg)
	const sampleRate = 24000
	start := time.Now()
	pcm, err := client.Synthesize(ctx, &speechmodel.TTSRequest{
		Text:       text,
		Voice:      voice,
		SampleRate: sampleRate,
	})
	if err != nil {
		if errors.Is(err, speech.ErrEmptyAudio) {
			log.Fatal("TTS 返回了空音频")
		}
		log.Fatalf("TTS 调用失败: %v", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("创建输出文件失败: %v", err)
	}
	defer file.Close()

	if err := audio.WriteWAV(file, audio.BytesToSamples(pcm), sampleRate); err != nil {
		log.Fatalf("写入音频失败: %v", err)
	}

	log.Printf("TTS 合成成功: file=%s duration=%s elapsed=%s",
		outputPath, audio.PCMDuration(pcm, sampleRate), time.Since(start).Round(time.Millisecond))
}
