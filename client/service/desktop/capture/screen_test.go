package capture

import (
	"testing"

	"github.com/kbinani/screenshot"
)

func TestDisplaysMatchesActiveCount(t *testing.T) {
	displays := Displays()
	if len(displays) != screenshot.NumActiveDisplays() {
		t.Fatalf("Displays() returned %d entries, want %d", len(displays), screenshot.NumActiveDisplays())
	}
}

func TestSetDisplayRejectsInvalidIndex(t *testing.T) {
	source := &ScreenSource{}
	if err := source.SetDisplay(-1); err == nil {
		t.Fatal("expected error for negative display index")
	}
	if err := source.SetDisplay(1 << 20); err == nil {
		t.Fatal("expected error for out-of-range display index")
	}
}

func TestScreenSourceImplementsDisplaySwitcher(t *testing.T) {
	var source Source = &ScreenSource{}
	if _, ok := source.(DisplaySwitcher); !ok {
		t.Fatal("screen source should support display switching")
	}
	var mock Source = NewMockSource(8, 8)
	if _, ok := mock.(DisplaySwitcher); ok {
		t.Fatal("mock source should not advertise display switching")
	}
}
