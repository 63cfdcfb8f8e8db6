package audio

import (
	"testing"
	"time"
)

func TestIsSilent(t *testing.T) {
	if !IsSilent(nil) {
		t.Fatalf("empty frame should be silent")
	}
	quiet := make([]float32, SamplesPerFrame*Channels)
	for i := range quiet {
		quiet[i] = 0.0005
	}
	if !IsSilent(quiet) {
		t.Fatalf("-66dB frame should be silent")
	}
	loud := make([]float32, SamplesPerFrame*Channels)
	for i := range loud {
		loud[i] = 0.1
	}
	if IsSilent(loud) {
		t.Fatalf("-20dB frame should not be silent")
	}
}

func TestSineSourceCadence(t *testing.T) {
	src := NewSineSource(440, 0.5)
	defer src.Close()

	frame, err := src.NextFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(frame.Samples) != SamplesPerFrame*Channels {
		t.Fatalf("unexpected frame size %d", len(frame.Samples))
	}
	if IsSilent(frame.Samples) {
		t.Fatalf("tone should not be silent")
	}
	// Stereo interleave: both channels carry the same tone.
	for i := 0; i < len(frame.Samples); i += 2 {
		if frame.Samples[i] != frame.Samples[i+1] {
			t.Fatalf("channels diverge at sample %d", i)
		}
	}
}

func TestSineSourcePhaseContinuity(t *testing.T) {
	src := NewSineSource(440, 0.5)
	defer src.Close()
	first, err := src.NextFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	second, err := src.NextFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	same := true
	for i := range first.Samples {
		if first.Samples[i] != second.Samples[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("consecutive frames should continue the waveform, not repeat it")
	}
}

func TestSineSourceClosed(t *testing.T) {
	src := NewSineSource(440, 0.5)
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := src.NextFrame(); err != ErrSourceClosed {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestPipelineSubmitDropsWhenNotRunning(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	// Not started: the queue fills, then further frames count as drops.
	frame := Frame{Samples: make([]float32, SamplesPerFrame*Channels), Timestamp: time.Now()}
	for i := 0; i < audioFrameQueueSize+5; i++ {
		p.Submit(frame)
	}
	if p.Drops() != 5 {
		t.Fatalf("expected 5 drops, got %d", p.Drops())
	}
}

func TestPipelineStartValidation(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	if err := p.Start(nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}
