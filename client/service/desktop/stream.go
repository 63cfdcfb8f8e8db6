// Package desktop runs the screen capture loop: it grabs frames from a
// capture source, computes block diffs, JPEG-encodes what changed, and hands
// the results to the WebRTC layer (diff packets over the data channel, full
// frames into the video pipeline).
package desktop

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kataras/golog"

	"Mirage/client/service/desktop/capture"
)

var logger = golog.Child("[desktop]")

var errNoImage = errors.New("desktop: no image captured yet")

// FrameSink receives the two stream products of each captured frame.
type FrameSink interface {
	// SendDiffBlocks ships encoded block packets to connected viewers.
	SendDiffBlocks(blocks [][]byte)
	// PublishFrame offers the full frame to the video encoder pipeline.
	PublishFrame(img *image.RGBA, fps int)
}

// MetricsSink is implemented by sinks that forward interval stats upstream.
type MetricsSink interface {
	PublishMetrics(data map[string]any)
}

// Streamer owns one capture loop.
type Streamer struct {
	mu      sync.Mutex
	source  capture.Source
	sink    FrameSink
	quit    chan struct{}
	running bool
	prev    *image.RGBA
	metrics *streamMetrics
}

// NewStreamer wires a capture source to a frame sink.
func NewStreamer(source capture.Source, sink FrameSink) (*Streamer, error) {
	if source == nil {
		return nil, fmt.Errorf("desktop: capture source required")
	}
	if sink == nil {
		return nil, fmt.Errorf("desktop: frame sink required")
	}
	return &Streamer{
		source:  source,
		sink:    sink,
		quit:    make(chan struct{}),
		metrics: newStreamMetrics(),
	}, nil
}

// Start launches the capture loop.
func (s *Streamer) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.loop()
}

// Stop terminates the loop and closes the capture source.
func (s *Streamer) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.quit)
}

func (s *Streamer) loop() {
	defer s.source.Close()
	for {
		preset := snapshotCapturePreset()
		frameBudget := time.Second / time.Duration(preset.FPS)
		started := time.Now()

		select {
		case <-s.quit:
			return
		default:
		}

		if err := s.captureOne(preset); err != nil && err != errNoImage {
			s.metrics.recordError(err)
			logger.Debugf("capture error: %v", err)
		}
		s.maybeReport()

		elapsed := time.Since(started)
		if elapsed < frameBudget {
			select {
			case <-s.quit:
				return
			case <-time.After(frameBudget - elapsed):
			}
		}
	}
}

// maybeReport logs the interval stats and forwards them when the sink also
// acts as a metrics sink. No-op while the interval is still open.
func (s *Streamer) maybeReport() {
	snap, ok := s.metrics.snapshot()
	if !ok {
		return
	}
	logger.Infof("stream stats interval=%s frames=%d blocks=%d bytes=%d skipped=%d errors=%d",
		snap.Interval.Round(time.Millisecond), snap.Frames, snap.Blocks, snap.Bytes, snap.Skipped, snap.EncoderErrors)
	if reporter, ok := s.sink.(MetricsSink); ok {
		reporter.PublishMetrics(snap.payload())
	}
}

func (s *Streamer) captureOne(preset capturePreset) error {
	img, err := s.source.NextFrame()
	if err != nil {
		return err
	}
	if img == nil {
		return errNoImage
	}

	s.sink.PublishFrame(img, preset.FPS)

	var blocks [][]byte
	if s.prev == nil || s.prev.Rect != img.Rect {
		blocks = splitFullImage(img, preset.JPEGQuality)
	} else {
		regions := diffRegions(img, s.prev)
		if len(regions) == 0 {
			s.metrics.recordSkip()
			s.prev = cloneFrame(img, s.prev)
			return nil
		}
		blocks = make([][]byte, 0, len(regions))
		for _, rect := range regions {
			packet, err := encodeBlock(img, rect, preset.JPEGQuality)
			if err != nil {
				s.metrics.recordError(err)
				continue
			}
			blocks = append(blocks, packet)
		}
	}
	s.prev = cloneFrame(img, s.prev)

	if len(blocks) == 0 {
		return nil
	}
	s.sink.SendDiffBlocks(blocks)
	s.metrics.recordFrame(payloadSize(blocks), len(blocks))
	return nil
}

// cloneFrame copies img into dst when geometry matches, reallocating
// otherwise. Sources may reuse their frame buffers between grabs.
func cloneFrame(img, dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Rect != img.Rect || dst.Stride != img.Stride {
		dst = image.NewRGBA(img.Rect)
		dst.Stride = img.Stride
		if len(dst.Pix) != len(img.Pix) {
			dst.Pix = make([]byte, len(img.Pix))
		}
	}
	copy(dst.Pix, img.Pix)
	return dst
}

func payloadSize(blocks [][]byte) int {
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	return total
}
