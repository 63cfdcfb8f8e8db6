//go:build cgo

package encoder

/*
#cgo pkg-config: vpx

#include <string.h>
#include <vpx/vpx_encoder.h>
#include <vpx/vp8cx.h>

static vpx_codec_iface_t *mirage_vp8_iface(void) {
	return vpx_codec_vp8_cx();
}

static void mirage_vpx_copy_plane(unsigned char *dst, int dst_stride,
                                  const unsigned char *src, int src_stride,
                                  int width, int rows) {
	int r;
	for (r = 0; r < rows; r++) {
		memcpy(dst + (size_t)r * dst_stride, src + (size_t)r * src_stride, width);
	}
}

// The packet payload lives in a union cgo cannot address; unpack it here.
static int mirage_vpx_frame_pkt(const vpx_codec_cx_pkt_t *pkt,
                                const void **buf, size_t *sz, int *keyframe) {
	if (pkt->kind != VPX_CODEC_CX_FRAME_PKT) {
		return 0;
	}
	*buf = pkt->data.frame.buf;
	*sz = pkt->data.frame.sz;
	*keyframe = (pkt->data.frame.flags & VPX_FRAME_IS_KEY) != 0;
	return 1;
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"Mirage/client/service/desktop/yuv"
)

const (
	vp8EncoderName = "vp8-software"
	// Millisecond timebase, matching the pts/duration units the pipeline uses.
	vp8TimebaseDen = 1000
	minVP8Kbps     = 300
)

func registerVP8Encoder(m *Manager) {
	m.registerVideoFactory(vp8Factory{}, true)
}

type vp8Factory struct{}

func (vp8Factory) Capability() Capability {
	return Capability{
		Name:        vp8EncoderName,
		Type:        "software-vp8",
		Codec:       "vp8",
		Lossless:    false,
		Hardware:    false,
		Description: "libvpx VP8 encoder (realtime, CBR)",
	}
}

func (vp8Factory) Open(cfg VideoConfig) (VideoInstance, error) {
	return newVP8Instance(cfg)
}

// vp8Instance drives one libvpx encoder context. Frames arrive as RGBA,
// get converted to I420 through the yuv package, and come out as VP8
// bitstream samples.
type vp8Instance struct {
	mu       sync.Mutex
	ctx      C.vpx_codec_ctx_t
	img      *C.vpx_image_t
	i420     *yuv.I420Image
	width    int
	height   int
	pts      int64
	forceKF  bool
	closed   bool
	duration int64 // per-frame duration in timebase units
}

func newVP8Instance(cfg VideoConfig) (*vp8Instance, error) {
	// VP8 needs even dimensions; trim the odd edge row/column like the
	// conversion path does.
	width := cfg.Width &^ 1
	height := cfg.Height &^ 1
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vp8: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 24
	}

	var vpxCfg C.vpx_codec_enc_cfg_t
	if res := C.vpx_codec_enc_config_default(C.mirage_vp8_iface(), &vpxCfg, 0); res != C.VPX_CODEC_OK {
		return nil, fmt.Errorf("vp8: default config failed: %d", int(res))
	}
	kbps := cfg.Bitrate / 1000
	if kbps < minVP8Kbps {
		kbps = minVP8Kbps
	}
	threads := runtime.NumCPU()
	if threads > 8 {
		threads = 8
	}
	vpxCfg.g_w = C.uint(width)
	vpxCfg.g_h = C.uint(height)
	vpxCfg.g_timebase.num = 1
	vpxCfg.g_timebase.den = vp8TimebaseDen
	vpxCfg.g_threads = C.uint(threads)
	vpxCfg.g_lag_in_frames = 0
	vpxCfg.g_pass = C.VPX_RC_ONE_PASS
	vpxCfg.g_error_resilient = C.VPX_ERROR_RESILIENT_DEFAULT
	vpxCfg.rc_end_usage = C.VPX_CBR
	vpxCfg.rc_target_bitrate = C.uint(kbps)
	vpxCfg.kf_mode = C.VPX_KF_AUTO
	vpxCfg.kf_max_dist = C.uint(fps * 4)

	inst := &vp8Instance{
		i420:     yuv.NewI420(width, height),
		width:    width,
		height:   height,
		forceKF:  true,
		duration: int64(vp8TimebaseDen / fps),
	}
	if inst.duration <= 0 {
		inst.duration = 1
	}
	if res := C.vpx_codec_enc_init_ver(&inst.ctx, C.mirage_vp8_iface(), &vpxCfg, 0, C.VPX_ENCODER_ABI_VERSION); res != C.VPX_CODEC_OK {
		return nil, fmt.Errorf("vp8: encoder init failed: %s", C.GoString(C.vpx_codec_error(&inst.ctx)))
	}
	img := C.vpx_img_alloc(nil, C.VPX_IMG_FMT_I420, C.uint(width), C.uint(height), 1)
	if img == nil {
		C.vpx_codec_destroy(&inst.ctx)
		return nil, fmt.Errorf("vp8: image alloc failed for %dx%d", width, height)
	}
	inst.img = img
	return inst, nil
}

func (e *vp8Instance) Encode(frame VideoFrame) (VideoSample, error) {
	if e == nil {
		return VideoSample{}, fmt.Errorf("vp8: nil instance")
	}
	if frame.Image == nil {
		return VideoSample{}, fmt.Errorf("vp8: nil frame")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return VideoSample{}, fmt.Errorf("vp8: encoder closed")
	}
	if frame.Image.Rect.Dx() < e.width || frame.Image.Rect.Dy() < e.height {
		return VideoSample{}, fmt.Errorf("vp8: frame %dx%d smaller than configured %dx%d",
			frame.Image.Rect.Dx(), frame.Image.Rect.Dy(), e.width, e.height)
	}

	if err := yuv.ABGRToI420(frame.Image.Pix, frame.Image.Stride, e.i420, e.width, e.height); err != nil {
		return VideoSample{}, fmt.Errorf("vp8: color conversion: %w", err)
	}
	e.loadPlanes()

	var flags C.vpx_enc_frame_flags_t
	if e.forceKF {
		flags |= C.VPX_EFLAG_FORCE_KF
		e.forceKF = false
	}
	res := C.vpx_codec_encode(&e.ctx, e.img, C.vpx_codec_pts_t(e.pts),
		C.ulong(e.duration), flags, C.ulong(C.VPX_DL_REALTIME))
	if res != C.VPX_CODEC_OK {
		return VideoSample{}, fmt.Errorf("vp8: encode failed: %s", C.GoString(C.vpx_codec_error(&e.ctx)))
	}
	e.pts += e.duration

	var iter C.vpx_codec_iter_t
	for {
		pkt := C.vpx_codec_get_cx_data(&e.ctx, &iter)
		if pkt == nil {
			break
		}
		var buf unsafe.Pointer
		var size C.size_t
		var keyframe C.int
		if C.mirage_vpx_frame_pkt(pkt, &buf, &size, &keyframe) == 0 {
			continue
		}
		data := C.GoBytes(buf, C.int(size))
		return VideoSample{
			Data:      data,
			Timestamp: frame.Timestamp,
			Duration:  frame.Duration,
			Keyframe:  keyframe != 0,
		}, nil
	}
	return VideoSample{}, ErrNoVideoSample
}

// loadPlanes copies the converted I420 planes into the libvpx image,
// honoring its row alignment.
func (e *vp8Instance) loadPlanes() {
	chromaH := (e.height + 1) / 2
	chromaW := (e.width + 1) / 2
	C.mirage_vpx_copy_plane(e.img.planes[0], e.img.stride[0],
		(*C.uchar)(unsafe.Pointer(&e.i420.Y[0])), C.int(e.i420.StrideY),
		C.int(e.width), C.int(e.height))
	C.mirage_vpx_copy_plane(e.img.planes[1], e.img.stride[1],
		(*C.uchar)(unsafe.Pointer(&e.i420.U[0])), C.int(e.i420.StrideU),
		C.int(chromaW), C.int(chromaH))
	C.mirage_vpx_copy_plane(e.img.planes[2], e.img.stride[2],
		(*C.uchar)(unsafe.Pointer(&e.i420.V[0])), C.int(e.i420.StrideV),
		C.int(chromaW), C.int(chromaH))
}

func (e *vp8Instance) RequestKeyframe() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.forceKF = true
	e.mu.Unlock()
}

func (e *vp8Instance) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.img != nil {
		C.vpx_img_free(e.img)
		e.img = nil
	}
	if res := C.vpx_codec_destroy(&e.ctx); res != C.VPX_CODEC_OK {
		return fmt.Errorf("vp8: destroy failed: %d", int(res))
	}
	return nil
}
