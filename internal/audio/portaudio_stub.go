//go:build !portaudio

package audio

import "context"

// PortAudioMicrophone is only available in builds tagged portaudio.
type PortAudioMicrophone struct {
	SampleRate int
}

func (PortAudioMicrophone) Open(ctx context.Context) (Stream, error) {
	return nil, ErrUnsupported
}

// NewPortAudioPlayer is only available in builds tagged portaudio.
func NewPortAudioPlayer() (Player, error) {
	return nil, ErrUnsupported
}
