//go:build cgo

package audio

import (
	"sync"
	"testing"
	"time"
)

func TestPipelineEncodesSineFrames(t *testing.T) {
	p := NewPipeline(PipelineConfig{Bitrate: 64000, Complexity: 5})

	var mu sync.Mutex
	var samples []Sample
	err := p.Start(func(s Sample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	src := NewSineSource(440, 0.5)
	defer src.Close()
	for i := 0; i < 20; i++ {
		frame, err := src.NextFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		p.Submit(frame)
	}

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(samples)
		mu.Unlock()
		if n >= 20 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for encoded samples, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, s := range samples {
		if len(s.Data) == 0 {
			t.Fatalf("sample %d empty", i)
		}
		if s.Duration != FrameDuration {
			t.Fatalf("sample %d duration %v", i, s.Duration)
		}
		if s.Silent {
			t.Fatalf("sample %d flagged silent for a tone", i)
		}
	}
}

func TestPipelineStartIsIdempotent(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	sink := func(Sample) {}
	if err := p.Start(sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	if err := p.Start(sink); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
}
