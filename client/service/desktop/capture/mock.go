package capture

import (
	"image"
	"math"
)

// Animated gradient used when no display is available. Frames are
// pregenerated so NextFrame stays cheap inside tight capture loops.
const defaultMockFrames = 90

// MockSource cycles through a precomputed HSV gradient animation.
type MockSource struct {
	bounds image.Rectangle
	frames []*image.RGBA
	index  int
	closed bool
}

// NewMockSource builds a synthetic source of the given dimensions.
func NewMockSource(width, height int) *MockSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 360
	}
	bounds := image.Rect(0, 0, width, height)
	frames := make([]*image.RGBA, defaultMockFrames)
	for i := range frames {
		frames[i] = gradientFrame(bounds, float64(i)/float64(defaultMockFrames))
	}
	return &MockSource{bounds: bounds, frames: frames}
}

func (s *MockSource) Bounds() image.Rectangle {
	if s == nil {
		return image.Rectangle{}
	}
	return s.bounds
}

func (s *MockSource) NextFrame() (*image.RGBA, error) {
	if s == nil || s.closed {
		return nil, ErrSourceClosed
	}
	frame := s.frames[s.index]
	s.index = (s.index + 1) % len(s.frames)
	return frame, nil
}

func (s *MockSource) Close() error {
	if s == nil {
		return nil
	}
	s.closed = true
	return nil
}

// gradientFrame paints a horizontal hue sweep whose phase advances with the
// animation position, so consecutive frames always differ.
func gradientFrame(bounds image.Rectangle, phase float64) *image.RGBA {
	img := image.NewRGBA(bounds)
	width := bounds.Dx()
	height := bounds.Dy()
	for y := 0; y < height; y++ {
		value := 0.6 + 0.4*float64(y)/float64(height)
		for x := 0; x < width; x++ {
			hue := math.Mod(360.0*float64(x)/float64(width)+360.0*phase, 360.0)
			r, g, b := hsvToRGB(hue, 1.0, value)
			idx := img.PixOffset(x, y)
			img.Pix[idx] = r
			img.Pix[idx+1] = g
			img.Pix[idx+2] = b
			img.Pix[idx+3] = 0xff
		}
	}
	return img
}

func hsvToRGB(h, s, v float64) (byte, byte, byte) {
	c := v * s
	hPrime := h / 60.0
	x := c * (1.0 - math.Abs(math.Mod(hPrime, 2.0)-1.0))
	m := v - c

	var r, g, b float64
	switch int(hPrime) {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return byte((r + m) * 255), byte((g + m) * 255), byte((b + m) * 255)
}
