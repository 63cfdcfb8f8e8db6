//go:build cgo

package opus

/*
#cgo pkg-config: opus

#include <opus.h>
*/
import "C"

// Error is an untranslated libopus status code. The numeric value is exactly
// what the native call returned; Code exposes it for callers that match on
// the library's documented constants.
type Error int

// Named status codes re-exported from <opus.h>. Values come from the
// distributed header, never redefined locally.
const (
	ErrBadArg         = Error(C.OPUS_BAD_ARG)
	ErrBufferTooSmall = Error(C.OPUS_BUFFER_TOO_SMALL)
	ErrInternal       = Error(C.OPUS_INTERNAL_ERROR)
	ErrInvalidPacket  = Error(C.OPUS_INVALID_PACKET)
	ErrUnimplemented  = Error(C.OPUS_UNIMPLEMENTED)
	ErrInvalidState   = Error(C.OPUS_INVALID_STATE)
	ErrAllocFail      = Error(C.OPUS_ALLOC_FAIL)
)

func (e Error) Error() string {
	return "opus: " + C.GoString(C.opus_strerror(C.int(e)))
}

// Code returns the raw native status code.
func (e Error) Code() int { return int(e) }
