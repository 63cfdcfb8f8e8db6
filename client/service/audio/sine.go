package audio

import (
	"math"
	"time"
)

// SineSource synthesizes a steady tone. It stands in for a real microphone
// in tests and headless runs.
type SineSource struct {
	frequency float64
	amplitude float64
	position  int
	closed    bool
}

// NewSineSource builds a tone generator at the given frequency.
func NewSineSource(frequency, amplitude float64) *SineSource {
	if frequency <= 0 {
		frequency = 440
	}
	if amplitude <= 0 || amplitude > 1 {
		amplitude = 0.5
	}
	return &SineSource{frequency: frequency, amplitude: amplitude}
}

func (s *SineSource) NextFrame() (Frame, error) {
	if s == nil || s.closed {
		return Frame{}, ErrSourceClosed
	}
	samples := make([]float32, SamplesPerFrame*Channels)
	for i := 0; i < SamplesPerFrame; i++ {
		t := float64(s.position+i) / SampleRate
		v := float32(s.amplitude * math.Sin(2*math.Pi*s.frequency*t))
		samples[i*Channels] = v
		samples[i*Channels+1] = v
	}
	s.position += SamplesPerFrame
	return Frame{Samples: samples, Timestamp: time.Now()}, nil
}

func (s *SineSource) Close() error {
	if s == nil {
		return nil
	}
	s.closed = true
	return nil
}
