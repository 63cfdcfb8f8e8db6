// Package capture provides the RGBA frame sources the desktop streamer
// consumes: a real screen grabber and a synthetic animated source for tests
// and headless runs.
package capture

import (
	"errors"
	"image"
)

// Source delivers RGBA frames on demand. Implementations own the returned
// image until the next NextFrame call; callers that keep a frame across
// calls must copy it.
type Source interface {
	// Bounds reports the frame rectangle the source produces.
	Bounds() image.Rectangle
	// NextFrame grabs or synthesizes the next frame.
	NextFrame() (*image.RGBA, error)
	Close() error
}

// DisplaySwitcher is implemented by sources that can retarget another
// physical display while streaming.
type DisplaySwitcher interface {
	SetDisplay(index int) error
}

// ErrSourceClosed reports NextFrame after Close.
var ErrSourceClosed = errors.New("capture: source closed")
