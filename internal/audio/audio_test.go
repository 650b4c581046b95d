package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("expected 0 for empty frame, got %f", got)
	}
	if got := Level(make([]int16, 160)); got != 0 {
		t.Fatalf("expected 0 for silence, got %f", got)
	}
	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 32767
	}
	if got := Level(loud); got < 0.99 || got > 1 {
		t.Fatalf("expected full scale level, got %f", got)
	}
}

func TestPCMHelpers(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	if got := BytesToSamples(SamplesToBytes(samples)); len(got) != len(samples) || got[2] != -1 || got[4] != -32768 {
		t.Fatalf("unexpected samples %v", got)
	}
	pcm := make([]byte, 32000)
	if d := PCMDuration(pcm, 16000); d != time.Second {
		t.Fatalf("expected 1s, got %s", d)
	}
	if d := PCMDuration(pcm, 0); d != 0 {
		t.Fatalf("expected 0 for invalid rate, got %s", d)
	}
}

func TestResample(t *testing.T) {
	in := make([]int16, 48)
	for i := range in {
		in[i] = int16(i)
	}
	out := Resample(in, 48000, 16000)
	if len(out) != 16 {
		t.Fatalf("expected 16 samples, got %d", len(out))
	}
	if out[1] != 3 {
		t.Fatalf("expected nearest sample 3, got %d", out[1])
	}
}

func TestWAVMicrophoneReplaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.wav")
	samples := make([]int16, CaptureSampleRate/10)
	for i := range samples {
		samples[i] = 12000
	}
	var buf bytes.Buffer
	if err := WriteWAV(&buf, samples, CaptureSampleRate); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	stream, err := WAVMicrophone{Path: path}.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	meter := NewMeter(stream)
	defer meter.Close()

	select {
	case frame := <-meter.Frames():
		if len(frame) != CaptureSampleRate/10 {
			t.Fatalf("expected 100ms frame, got %d samples", len(frame))
		}
		if frame[0] != 12000 {
			t.Fatalf("expected recorded sample, got %d", frame[0])
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
	if meter.Level() <= 0 {
		t.Fatalf("expected positive level, got %f", meter.Level())
	}

	select {
	case frame := <-meter.Frames():
		if Level(frame) != 0 {
			t.Fatal("expected silence after the recording ends")
		}
	case <-time.After(time.Second):
		t.Fatal("no trailing frame delivered")
	}
}

func TestMeterCloseIsIdempotent(t *testing.T) {
	stream, _ := SilentMicrophone{}.Open(context.Background())
	meter := NewMeter(stream)
	if err := meter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := meter.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case _, ok := <-meter.Frames():
		for ok {
			_, ok = <-meter.Frames()
		}
	case <-time.After(time.Second):
		t.Fatal("frames channel was not closed")
	}
}

func TestWAVMicrophoneMissingFile(t *testing.T) {
	_, err := WAVMicrophone{Path: filepath.Join(t.TempDir(), "missing.wav")}.Open(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatal("missing file should not be reported as permission denied")
	}
}

func TestWAVPlayerWritesUtterances(t *testing.T) {
	dir := t.TempDir()
	player := &WAVPlayer{Dir: dir}
	pcm := SamplesToBytes(make([]int16, 160))

	if err := player.Play(context.Background(), pcm, 16000); err != nil {
		t.Fatalf("play: %v", err)
	}
	samples, rate, err := ReadWAV(filepath.Join(dir, "utterance-001.wav"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rate != 16000 || len(samples) != 160 {
		t.Fatalf("unexpected wav rate=%d samples=%d", rate, len(samples))
	}
}

func TestNullPlayerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NullPlayer{}.Play(ctx, make([]byte, 320000), 16000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
