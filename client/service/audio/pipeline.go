package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/kataras/golog"

	"Mirage/client/service/audio/opus"
)

const (
	audioFrameQueueSize = 32
	maxEncodedFrameSize = 4000

	defaultBitrate    = 64000
	defaultComplexity = 5
)

var logger = golog.Child("[audio]")

// PipelineConfig tunes the Opus encoder behind the pipeline.
type PipelineConfig struct {
	Bitrate    int32
	Complexity int32
}

// SampleSink receives encoded packets; the WebRTC manager broadcasts them to
// every session's audio track.
type SampleSink func(Sample)

// Pipeline owns the Opus encode worker: PCM frames go in via Submit, encoded
// samples come out through the sink. Backlogged frames are dropped rather
// than delaying capture.
type Pipeline struct {
	mu      sync.Mutex
	frames  chan Frame
	quit    chan struct{}
	running bool
	stopped bool
	enc     *opus.Encoder
	cfg     PipelineConfig
	drops   uint64
}

// NewPipeline builds a pipeline with the given encoder settings.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = defaultBitrate
	}
	if cfg.Complexity < 0 || cfg.Complexity > 10 {
		cfg.Complexity = defaultComplexity
	}
	return &Pipeline{
		frames: make(chan Frame, audioFrameQueueSize),
		quit:   make(chan struct{}),
		cfg:    cfg,
	}
}

// Submit queues a PCM frame for encoding, dropping it if the worker is
// backlogged.
func (p *Pipeline) Submit(frame Frame) {
	if p == nil || len(frame.Samples) == 0 {
		return
	}
	select {
	case p.frames <- frame:
	default:
		p.mu.Lock()
		p.drops++
		p.mu.Unlock()
	}
}

// Start launches the encode worker. The returned error covers encoder
// creation only; encode failures afterwards are logged and the frame skipped.
func (p *Pipeline) Start(sink SampleSink) error {
	if p == nil || sink == nil {
		return fmt.Errorf("audio: pipeline or sink missing")
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppAudio)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("audio: encoder create: %w", err)
	}
	if err := enc.SetBitrate(p.cfg.Bitrate); err != nil {
		enc.Close()
		p.mu.Unlock()
		return fmt.Errorf("audio: set bitrate %d: %w", p.cfg.Bitrate, err)
	}
	if err := enc.SetComplexity(p.cfg.Complexity); err != nil {
		enc.Close()
		p.mu.Unlock()
		return fmt.Errorf("audio: set complexity %d: %w", p.cfg.Complexity, err)
	}
	p.enc = enc
	p.running = true
	p.mu.Unlock()
	logger.Infof("audio pipeline started bitrate=%d complexity=%d opus=%s",
		p.cfg.Bitrate, p.cfg.Complexity, opus.Version())
	go p.loop(sink)
	return nil
}

func (p *Pipeline) loop(sink SampleSink) {
	out := make([]byte, maxEncodedFrameSize)
	for {
		select {
		case frame := <-p.frames:
			n, err := p.enc.EncodeFloat(frame.Samples, out)
			if err != nil {
				logger.Debugf("audio encode error: %v", err)
				continue
			}
			if n == 0 {
				continue
			}
			data := make([]byte, n)
			copy(data, out[:n])
			ts := frame.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			sink(Sample{
				Data:      data,
				Duration:  FrameDuration,
				Timestamp: ts,
				Silent:    IsSilent(frame.Samples),
			})
		case <-p.quit:
			p.closeEncoder()
			return
		}
	}
}

func (p *Pipeline) closeEncoder() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enc != nil {
		p.enc.Close()
		p.enc = nil
	}
	p.running = false
}

// Stop shuts the worker down and releases the native encoder.
func (p *Pipeline) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if !p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.quit)
}

// Drops reports frames discarded due to backlog since start.
func (p *Pipeline) Drops() uint64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drops
}
