package desktop

import "testing"

func TestApplyPreset(t *testing.T) {
	defer func() {
		if err := ApplyPreset(defaultPresetKey); err != nil {
			t.Fatalf("restore preset: %v", err)
		}
	}()
	if err := ApplyPreset("sharp"); err != nil {
		t.Fatalf("apply sharp: %v", err)
	}
	if key := CurrentPresetKey(); key != "sharp" {
		t.Fatalf("current preset = %q, want sharp", key)
	}
	if err := ApplyPreset("bogus"); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestFPSCapClampsPreset(t *testing.T) {
	defer SetFPSCap(0)
	defer func() {
		if err := ApplyPreset(defaultPresetKey); err != nil {
			t.Fatalf("restore preset: %v", err)
		}
	}()

	if err := ApplyPreset("smooth"); err != nil {
		t.Fatalf("apply smooth: %v", err)
	}
	if fps := snapshotCapturePreset().FPS; fps != 30 {
		t.Fatalf("uncapped fps = %d, want 30", fps)
	}

	SetFPSCap(10)
	if fps := snapshotCapturePreset().FPS; fps != 10 {
		t.Fatalf("capped fps = %d, want 10", fps)
	}

	// A cap above the preset rate leaves the preset alone.
	SetFPSCap(60)
	if fps := snapshotCapturePreset().FPS; fps != 30 {
		t.Fatalf("loose cap fps = %d, want 30", fps)
	}

	// Negative caps are treated as unlimited.
	SetFPSCap(-5)
	if fps := snapshotCapturePreset().FPS; fps != 30 {
		t.Fatalf("negative cap fps = %d, want 30", fps)
	}
}
