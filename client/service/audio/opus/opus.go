//go:build cgo

// Package opus wraps the parts of libopus the audio pipeline needs: encoder
// lifecycle, float encoding, and a fixed-arity adapter per control operation.
//
// libopus exposes every control through the single variadic
// opus_encoder_ctl(st, request, ...) entry point. cgo cannot express variadic
// native calls, so each control operation the pipeline uses gets one shim in
// the preamble that hardcodes the request macro and forwards its argument
// verbatim. Status codes pass through unmodified in both directions; new
// shims are added only when a caller needs the operation.
package opus

/*
#cgo pkg-config: opus

#include <opus.h>

static int mirage_opus_set_bitrate(OpusEncoder *st, opus_int32 bitrate) {
	return opus_encoder_ctl(st, OPUS_SET_BITRATE(bitrate));
}

static int mirage_opus_set_complexity(OpusEncoder *st, opus_int32 complexity) {
	return opus_encoder_ctl(st, OPUS_SET_COMPLEXITY(complexity));
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// Application selects the encoder tuning profile.
type Application int

const (
	AppVoIP               = Application(C.OPUS_APPLICATION_VOIP)
	AppAudio              = Application(C.OPUS_APPLICATION_AUDIO)
	AppRestrictedLowdelay = Application(C.OPUS_APPLICATION_RESTRICTED_LOWDELAY)
)

// Encoder borrows an opaque native encoder handle. The handle is created by
// opus_encoder_create and owned by this struct until Close; no call inspects
// or copies its bytes.
type Encoder struct {
	st         *C.OpusEncoder
	sampleRate int
	channels   int
}

// NewEncoder creates a native Opus encoder for the given sample rate and
// channel count.
func NewEncoder(sampleRate, channels int, app Application) (*Encoder, error) {
	var cerr C.int
	st := C.opus_encoder_create(
		C.opus_int32(sampleRate),
		C.int(channels),
		C.int(app),
		&cerr,
	)
	if cerr != C.OPUS_OK || st == nil {
		return nil, Error(cerr)
	}
	return &Encoder{st: st, sampleRate: sampleRate, channels: channels}, nil
}

// SetBitrate forwards a bitrate in bits per second to the encoder's control
// interface through the fixed-arity shim. The native status is surfaced
// unchanged: OPUS_BAD_ARG for out-of-range values, exactly as
// opus_encoder_ctl would report it.
func (e *Encoder) SetBitrate(bitrate int32) error {
	if e == nil || e.st == nil {
		return ErrEncoderClosed
	}
	return ctlResult(C.mirage_opus_set_bitrate(e.st, C.opus_int32(bitrate)))
}

// SetComplexity forwards a complexity setting (0-10) through the fixed-arity
// shim, with the same pass-through error contract as SetBitrate.
func (e *Encoder) SetComplexity(complexity int32) error {
	if e == nil || e.st == nil {
		return ErrEncoderClosed
	}
	return ctlResult(C.mirage_opus_set_complexity(e.st, C.opus_int32(complexity)))
}

// EncodeFloat encodes interleaved float32 PCM into out and returns the
// number of bytes written. len(pcm) must be a whole number of frames for the
// encoder's channel count.
func (e *Encoder) EncodeFloat(pcm []float32, out []byte) (int, error) {
	if e == nil || e.st == nil {
		return 0, ErrEncoderClosed
	}
	if len(pcm) == 0 || len(pcm)%e.channels != 0 {
		return 0, Error(C.OPUS_BAD_ARG)
	}
	if len(out) == 0 {
		return 0, Error(C.OPUS_BAD_ARG)
	}
	frameSize := len(pcm) / e.channels
	n := C.opus_encode_float(
		e.st,
		(*C.float)(unsafe.Pointer(&pcm[0])),
		C.int(frameSize),
		(*C.uchar)(unsafe.Pointer(&out[0])),
		C.opus_int32(len(out)),
	)
	if n < 0 {
		return 0, Error(n)
	}
	return int(n), nil
}

// SampleRate reports the rate the encoder was created with.
func (e *Encoder) SampleRate() int { return e.sampleRate }

// Channels reports the channel count the encoder was created with.
func (e *Encoder) Channels() int { return e.channels }

// Close destroys the native encoder. Safe to call more than once.
func (e *Encoder) Close() error {
	if e == nil || e.st == nil {
		return nil
	}
	C.opus_encoder_destroy(e.st)
	e.st = nil
	return nil
}

// ErrEncoderClosed reports use after Close; it is the only error this
// package introduces on top of the native status codes.
var ErrEncoderClosed = errors.New("opus: encoder closed")

func ctlResult(status C.int) error {
	if status != C.OPUS_OK {
		return Error(status)
	}
	return nil
}

// Version reports the linked libopus version string.
func Version() string {
	return C.GoString(C.opus_get_version_string())
}
