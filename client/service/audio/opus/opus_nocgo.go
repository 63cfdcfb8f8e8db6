//go:build !cgo

// Stub implementations for builds without cgo. Audio encoding requires the
// native libopus library; every operation reports ErrNoCgo so the pipeline
// can disable itself cleanly.
package opus

import "errors"

type Application int

const (
	AppVoIP               Application = 2048
	AppAudio              Application = 2049
	AppRestrictedLowdelay Application = 2051
)

// ErrNoCgo reports that the module was built without cgo support.
var ErrNoCgo = errors.New("opus: built without cgo, native encoder unavailable")

// ErrEncoderClosed reports use after Close.
var ErrEncoderClosed = errors.New("opus: encoder closed")

type Encoder struct{}

func NewEncoder(sampleRate, channels int, app Application) (*Encoder, error) {
	return nil, ErrNoCgo
}

func (e *Encoder) SetBitrate(bitrate int32) error       { return ErrNoCgo }
func (e *Encoder) SetComplexity(complexity int32) error { return ErrNoCgo }
func (e *Encoder) EncodeFloat(pcm []float32, out []byte) (int, error) {
	return 0, ErrNoCgo
}
func (e *Encoder) SampleRate() int { return 0 }
func (e *Encoder) Channels() int   { return 0 }
func (e *Encoder) Close() error    { return nil }

func Version() string { return "unavailable" }
