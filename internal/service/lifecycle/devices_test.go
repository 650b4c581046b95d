package lifecycle

import (
	"testing"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
)

func TestMicrophoneFor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AudioConfig
		wantErr bool
	}{
		{name: "none", cfg: config.AudioConfig{Input: "none"}},
		{name: "default", cfg: config.AudioConfig{}},
		{name: "wav", cfg: config.AudioConfig{Input: "wav", InputFile: "answer.wav"}},
		{name: "wav without file", cfg: config.AudioConfig{Input: "wav"}, wantErr: true},
		{name: "unknown", cfg: config.AudioConfig{Input: "alsa"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mic, err := MicrophoneFor(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got microphone %T", mic)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected microphone, got %v", err)
			}
		})
	}
}

func TestPlayerFor(t *testing.T) {
	player, err := PlayerFor(config.AudioConfig{Output: "wav", OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("PlayerFor err: %v", err)
	}
	if _, ok := player.(*audio.WAVPlayer); !ok {
		t.Fatalf("expected *audio.WAVPlayer, got %T", player)
	}
	if _, err := PlayerFor(config.AudioConfig{Output: "speakers"}); err == nil {
		t.Fatal("expected error for unknown output")
	}
}
