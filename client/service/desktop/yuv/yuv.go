//go:build cgo

package yuv

/*
#cgo LDFLAGS: -lyuv

#include <stdint.h>

// Declarations matching libyuv's exported ABI (argument order, widths and
// signedness follow include/libyuv/convert.h). Only the conversions the
// pipeline actually uses are declared; add more on demand.
int ABGRToI420(const uint8_t* src_abgr,
               int src_stride_abgr,
               uint8_t* dst_y,
               int dst_stride_y,
               uint8_t* dst_u,
               int dst_stride_u,
               uint8_t* dst_v,
               int dst_stride_v,
               int width,
               int height);

int ABGRToNV12(const uint8_t* src_abgr,
               int src_stride_abgr,
               uint8_t* dst_y,
               int dst_stride_y,
               uint8_t* dst_uv,
               int dst_stride_uv,
               int width,
               int height);
*/
import "C"

import "unsafe"

// ABGRToI420 converts a packed ABGR frame (RGBA byte order in memory) into
// planar YUV 4:2:0. The call forwards buffers and dimensions verbatim to
// libyuv; the caller keeps ownership of every buffer and nothing is retained
// after the call returns. A non-zero native status surfaces unchanged as a
// ConversionError.
func ABGRToI420(src []byte, srcStride int, dst *I420Image, width, height int) error {
	status := C.ABGRToI420(
		bytePtr(src),
		C.int(srcStride),
		bytePtr(dst.Y),
		C.int(dst.StrideY),
		bytePtr(dst.U),
		C.int(dst.StrideU),
		bytePtr(dst.V),
		C.int(dst.StrideV),
		C.int(width),
		C.int(height),
	)
	if status != 0 {
		return ConversionError(status)
	}
	return nil
}

// ABGRToNV12 converts a packed ABGR frame into semi-planar YUV 4:2:0
// (full Y plane plus one interleaved UV plane). Same pass-through contract
// as ABGRToI420.
func ABGRToNV12(src []byte, srcStride int, dst *NV12Image, width, height int) error {
	status := C.ABGRToNV12(
		bytePtr(src),
		C.int(srcStride),
		bytePtr(dst.Y),
		C.int(dst.StrideY),
		bytePtr(dst.UV),
		C.int(dst.StrideUV),
		C.int(width),
		C.int(height),
	)
	if status != 0 {
		return ConversionError(status)
	}
	return nil
}

func bytePtr(buf []byte) *C.uint8_t {
	if len(buf) == 0 {
		return nil
	}
	return (*C.uint8_t)(unsafe.Pointer(&buf[0]))
}
