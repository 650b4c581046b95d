//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioMicrophone captures from the default input device.
type PortAudioMicrophone struct {
	SampleRate int
}

// Open initialises PortAudio and starts the default input stream.
func (m PortAudioMicrophone) Open(ctx context.Context) (Stream, error) {
	rate := m.SampleRate
	if rate <= 0 {
		rate = CaptureSampleRate
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	s := &portAudioStream{
		rate:   rate,
		frames: make(chan []int16, 32),
	}
	framesPerBuffer := rate / 10
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), framesPerBuffer, func(in []int16) {
		frame := make([]int16, len(in))
		copy(frame, in)
		select {
		case s.frames <- frame:
		default:
		}
	})
	if err != nil {
		portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}
	s.stream = stream
	log.Printf("[audio] capturing from default input at %d Hz", rate)
	return s, nil
}

type portAudioStream struct {
	rate   int
	frames chan []int16
	stream *portaudio.Stream
	once   sync.Once
}

func (s *portAudioStream) Frames() <-chan []int16 { return s.frames }

func (s *portAudioStream) SampleRate() int { return s.rate }

func (s *portAudioStream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("stop input stream: %w", stopErr)
		}
		s.stream.Close()
		portaudio.Terminate()
		close(s.frames)
		log.Printf("[audio] capture released")
	})
	return err
}

// portAudioPlayer plays through the default output device.
type portAudioPlayer struct {
	mu sync.Mutex
}

// NewPortAudioPlayer returns a Player on the default output device.
func NewPortAudioPlayer() (Player, error) {
	return &portAudioPlayer{}, nil
}

func (p *portAudioPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	samples := BytesToSamples(pcm)
	framesPerBuffer := sampleRate / 10
	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buffer), &buffer)
	if err != nil {
		return classifyDeviceError(err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(samples); offset += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[offset:])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "device"):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	default:
		return fmt.Errorf("open audio stream: %w", err)
	}
}
