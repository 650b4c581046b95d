package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// Meter sits between a Stream and its consumer and tracks the input level.
type Meter struct {
	src   Stream
	out   chan []int16
	level atomic.Uint64
	once  sync.Once
	done  chan struct{}
}

// NewMeter starts metering src. The metered frames are available from Frames.
func NewMeter(src Stream) *Meter {
	m := &Meter{
		src:  src,
		out:  make(chan []int16, 32),
		done: make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *Meter) pump() {
	defer close(m.out)
	for {
		select {
		case <-m.done:
			return
		case frame, ok := <-m.src.Frames():
			if !ok {
				return
			}
			m.level.Store(math.Float64bits(Level(frame)))
			select {
			case m.out <- frame:
			default:
				// consumer is not reading; metering continues regardless
			}
		}
	}
}

// Frames returns the forwarded frames.
func (m *Meter) Frames() <-chan []int16 {
	return m.out
}

// SampleRate returns the source sample rate.
func (m *Meter) SampleRate() int {
	return m.src.SampleRate()
}

// Level returns the latest normalised level in [0, 1].
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Close stops metering and releases the underlying stream. It is idempotent.
func (m *Meter) Close() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.src.Close()
	})
	return err
}

// Level computes the RMS of frame normalised to [0, 1].
func Level(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms > 1 {
		return 1
	}
	return rms
}
