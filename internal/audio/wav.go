package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youpy/go-wav"
)

// WAVMicrophone replays a recorded answer as if it were live capture,
// followed by silence until closed.
type WAVMicrophone struct {
	Path string
}

// Open decodes the file and starts real-time frame delivery.
func (m WAVMicrophone) Open(ctx context.Context) (Stream, error) {
	samples, rate, err := ReadWAV(m.Path)
	if err != nil {
		return nil, err
	}
	if rate != CaptureSampleRate {
		samples = Resample(samples, rate, CaptureSampleRate)
	}
	return newSampleStream(samples, CaptureSampleRate), nil
}

// ReadWAV loads the first channel of a PCM WAV file.
func ReadWAV(path string) ([]int16, int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, 0, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, 0, fmt.Errorf("open wav %s: %w", path, err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("read wav format: %w", err)
	}
	if format.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported wav bit depth %d", format.BitsPerSample)
	}

	var out []int16
	for {
		batch, err := reader.ReadSamples(4096)
		for _, s := range batch {
			out = append(out, int16(reader.IntValue(s, 0)))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read wav samples: %w", err)
		}
	}
	return out, int(format.SampleRate), nil
}

// Resample converts between sample rates by nearest-neighbour picking.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, n)
	for i := range out {
		out[i] = samples[int64(i)*int64(from)/int64(to)]
	}
	return out
}

// sampleStream paces a fixed buffer in real time, then emits silence.
type sampleStream struct {
	rate   int
	frames chan []int16
	done   chan struct{}
	once   sync.Once
}

func newSampleStream(samples []int16, rate int) *sampleStream {
	s := &sampleStream{
		rate:   rate,
		frames: make(chan []int16, 8),
		done:   make(chan struct{}),
	}
	go s.run(samples)
	return s
}

func (s *sampleStream) run(samples []int16) {
	defer close(s.frames)
	frameLen := s.rate * int(frameDuration/time.Millisecond) / 1000
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	offset := 0
	for {
		frame := make([]int16, frameLen)
		if offset < len(samples) {
			offset += copy(frame, samples[offset:])
		}
		select {
		case <-s.done:
			return
		case s.frames <- frame:
		}
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *sampleStream) Frames() <-chan []int16 { return s.frames }

func (s *sampleStream) SampleRate() int { return s.rate }

func (s *sampleStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// SilentMicrophone yields silence; used when capture happens elsewhere,
// for example with a text recognizer.
type SilentMicrophone struct{}

func (SilentMicrophone) Open(ctx context.Context) (Stream, error) {
	return newSampleStream(nil, CaptureSampleRate), nil
}

// WAVPlayer writes every utterance to Dir as a WAV file and waits for its
// duration so timing matches real playback.
type WAVPlayer struct {
	Dir string

	seq atomic.Uint64
}

func (p *WAVPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if p.Dir != "" {
		if err := p.write(pcm, sampleRate); err != nil {
			return err
		}
	}
	return sleepContext(ctx, PCMDuration(pcm, sampleRate))
}

func (p *WAVPlayer) write(pcm []byte, sampleRate int) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := filepath.Join(p.Dir, fmt.Sprintf("utterance-%03d.wav", p.seq.Add(1)))
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer file.Close()

	return WriteWAV(file, BytesToSamples(pcm), sampleRate)
}

// WriteWAV encodes mono 16-bit samples.
func WriteWAV(w io.Writer, samples []int16, sampleRate int) error {
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), 16)
	batch := make([]wav.Sample, len(samples))
	for i, s := range samples {
		batch[i].Values[0] = int(s)
	}
	if err := writer.WriteSamples(batch); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}

// NullPlayer discards audio but still takes its duration.
type NullPlayer struct{}

func (NullPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	return sleepContext(ctx, PCMDuration(pcm, sampleRate))
}
