package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/kataras/golog"
	"github.com/kbinani/screenshot"
)

var logger = golog.Child("[capture]")

// ScreenSource grabs frames from one physical display.
type ScreenSource struct {
	mu      sync.Mutex
	display int
	bounds  image.Rectangle
	closed  bool
}

// NewScreenSource opens the display with the given index.
func NewScreenSource(display int) (*ScreenSource, error) {
	if display < 0 || display >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("capture: display %d not available (%d active)", display, screenshot.NumActiveDisplays())
	}
	bounds := screenshot.GetDisplayBounds(display)
	logger.Infof("screen source opened display=%d bounds=%v", display, bounds)
	return &ScreenSource{display: display, bounds: bounds}, nil
}

// Displays lists the bounds of every active display, indexed by display id.
func Displays() []image.Rectangle {
	count := screenshot.NumActiveDisplays()
	displays := make([]image.Rectangle, count)
	for i := 0; i < count; i++ {
		displays[i] = screenshot.GetDisplayBounds(i)
	}
	return displays
}

func (s *ScreenSource) Bounds() image.Rectangle {
	if s == nil {
		return image.Rectangle{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds
}

// SetDisplay retargets the source to another display. The switch takes
// effect on the next grab.
func (s *ScreenSource) SetDisplay(index int) error {
	if s == nil {
		return ErrSourceClosed
	}
	if index < 0 || index >= screenshot.NumActiveDisplays() {
		return fmt.Errorf("capture: display %d not available (%d active)", index, screenshot.NumActiveDisplays())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	s.display = index
	s.bounds = screenshot.GetDisplayBounds(index)
	logger.Infof("screen source switched display=%d bounds=%v", index, s.bounds)
	return nil
}

func (s *ScreenSource) NextFrame() (*image.RGBA, error) {
	if s == nil {
		return nil, ErrSourceClosed
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	display := s.display
	s.mu.Unlock()
	// Display geometry can change between grabs (resolution switch, monitor
	// unplug); refresh bounds each time like the capture loop expects.
	bounds := screenshot.GetDisplayBounds(display)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture: display %d grab failed: %w", display, err)
	}
	s.mu.Lock()
	s.bounds = bounds
	s.mu.Unlock()
	return img, nil
}

func (s *ScreenSource) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
