package lifecycle

import (
	"fmt"

	"github.com/zhouzirui/voice-interview/client/internal/audio"
	"github.com/zhouzirui/voice-interview/client/internal/config"
)

// MicrophoneFor selects the capture source named by cfg.Input.
func MicrophoneFor(cfg config.AudioConfig) (audio.Microphone, error) {
	switch cfg.Input {
	case "", "none":
		return audio.SilentMicrophone{}, nil
	case "wav":
		if cfg.InputFile == "" {
			return nil, fmt.Errorf("audio input wav requires AUDIO_INPUT_FILE")
		}
		return audio.WAVMicrophone{Path: cfg.InputFile}, nil
	case "portaudio":
		return audio.PortAudioMicrophone{SampleRate: audio.CaptureSampleRate}, nil
	default:
		return nil, fmt.Errorf("unknown audio input %q", cfg.Input)
	}
}

// PlayerFor selects the playback sink named by cfg.Output.
func PlayerFor(cfg config.AudioConfig) (audio.Player, error) {
	switch cfg.Output {
	case "", "none":
		return audio.NullPlayer{}, nil
	case "wav":
		return &audio.WAVPlayer{Dir: cfg.OutputDir}, nil
	case "portaudio":
		return audio.NewPortAudioPlayer()
	default:
		return nil, fmt.Errorf("unknown audio output %q", cfg.Output)
	}
}
