package capture

import (
	"image"
	"testing"
)

func TestMockSourceFrames(t *testing.T) {
	src := NewMockSource(64, 48)
	if got := src.Bounds(); got != image.Rect(0, 0, 64, 48) {
		t.Fatalf("unexpected bounds %v", got)
	}

	first, err := src.NextFrame()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	second, err := src.NextFrame()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if first == second {
		t.Fatalf("consecutive frames should differ while animating")
	}

	diff := false
	for i := range first.Pix {
		if first.Pix[i] != second.Pix[i] {
			diff = true
			break
		}
	}
	if !diff {
		t.Fatalf("animation should change pixel content between frames")
	}
}

func TestMockSourceCycles(t *testing.T) {
	src := NewMockSource(16, 16)
	first, err := src.NextFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	for i := 1; i < defaultMockFrames; i++ {
		if _, err := src.NextFrame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	again, err := src.NextFrame()
	if err != nil {
		t.Fatalf("wrapped frame: %v", err)
	}
	if first != again {
		t.Fatalf("animation should wrap back to the first frame")
	}
}

func TestMockSourceDefaultsAndClose(t *testing.T) {
	src := NewMockSource(0, -5)
	if src.Bounds().Dx() <= 0 || src.Bounds().Dy() <= 0 {
		t.Fatalf("expected fallback dimensions, got %v", src.Bounds())
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := src.NextFrame(); err != ErrSourceClosed {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}
