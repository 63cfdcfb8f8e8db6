// Package audio captures PCM frames and encodes them to Opus for the
// WebRTC audio track.
package audio

import (
	"errors"
	"math"
	"time"
)

const (
	// The pipeline runs libopus' native rate end to end: 48kHz stereo,
	// 10ms frames.
	SampleRate      = 48000
	Channels        = 2
	FrameDuration   = 10 * time.Millisecond
	SamplesPerFrame = 480 // per channel

	// -60dB; quieter frames are flagged silent so sessions can skip them.
	silenceRMSThreshold = 0.001
)

// Frame is one capture interval of interleaved float32 PCM.
type Frame struct {
	Samples   []float32
	Timestamp time.Time
}

// Sample is one encoded Opus packet ready for the track writer.
type Sample struct {
	Data      []byte
	Duration  time.Duration
	Timestamp time.Time
	Silent    bool
}

// Source delivers PCM frames on the capture cadence.
type Source interface {
	NextFrame() (Frame, error)
	Close() error
}

// ErrSourceClosed reports NextFrame after Close.
var ErrSourceClosed = errors.New("audio: source closed")

// IsSilent reports whether a frame's RMS falls under the silence threshold.
func IsSilent(samples []float32) bool {
	if len(samples) == 0 {
		return true
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return rms < silenceRMSThreshold
}
