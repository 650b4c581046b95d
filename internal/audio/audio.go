package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied means the capture device refused access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrNoDevice means no usable capture or playback device exists.
	ErrNoDevice = errors.New("audio: no audio device available")
	// ErrUnsupported means the build lacks the requested backend.
	ErrUnsupported = errors.New("audio: backend not supported in this build")
)

const (
	// CaptureSampleRate matches what the streaming recognizer expects.
	CaptureSampleRate = 16000
	frameDuration     = 100 * time.Millisecond
)

// Microphone grants access to a capture stream.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers mono 16-bit frames to one consumer.
type Stream interface {
	Frames() <-chan []int16
	SampleRate() int
	Close() error
}

// Player renders mono 16-bit little-endian PCM and blocks until done.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// PCMDuration returns how long pcm lasts at sampleRate.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// BytesToSamples decodes little-endian 16-bit PCM.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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
