//go:build cgo

package encoder

import (
	"image"
	"testing"
	"time"
)

func openTestVP8(t *testing.T, width, height int) VideoInstance {
	t.Helper()
	inst, err := Instance().OpenVideoEncoder("vp8-software", VideoConfig{
		Width:   width,
		Height:  height,
		FPS:     24,
		Bitrate: 1_000_000,
	})
	if err != nil {
		t.Fatalf("open vp8: %v", err)
	}
	t.Cleanup(func() { inst.Close() })
	return inst
}

func TestVP8EncodeProducesKeyframeFirst(t *testing.T) {
	inst := openTestVP8(t, 320, 240)
	sample, err := inst.Encode(VideoFrame{
		Image:     testFrame(320, 240),
		Timestamp: time.Now(),
		Duration:  time.Second / 24,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(sample.Data) == 0 {
		t.Fatalf("expected encoded payload")
	}
	if !sample.Keyframe {
		t.Fatalf("first sample should be a keyframe")
	}
}

func TestVP8RequestKeyframe(t *testing.T) {
	inst := openTestVP8(t, 320, 240)
	frame := VideoFrame{
		Image:     testFrame(320, 240),
		Timestamp: time.Now(),
		Duration:  time.Second / 24,
	}
	if _, err := inst.Encode(frame); err != nil {
		t.Fatalf("prime encode: %v", err)
	}
	inst.RequestKeyframe()
	sample, err := inst.Encode(frame)
	if err != nil {
		t.Fatalf("encode after keyframe request: %v", err)
	}
	if !sample.Keyframe {
		t.Fatalf("expected forced keyframe")
	}
}

func TestVP8OddDimensionsTrimmed(t *testing.T) {
	inst := openTestVP8(t, 321, 241)
	sample, err := inst.Encode(VideoFrame{
		Image:     testFrame(321, 241),
		Timestamp: time.Now(),
		Duration:  time.Second / 24,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(sample.Data) == 0 {
		t.Fatalf("expected encoded payload for trimmed frame")
	}
}

func TestVP8RejectsInvalidConfig(t *testing.T) {
	if _, err := Instance().OpenVideoEncoder("vp8-software", VideoConfig{Width: 0, Height: 240}); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestVP8EncodeAfterClose(t *testing.T) {
	inst := openTestVP8(t, 64, 64)
	if err := inst.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := inst.Encode(VideoFrame{Image: testFrame(64, 64)}); err == nil {
		t.Fatalf("expected error after close")
	}
}
