package encoder

import (
	"image"
	"strings"
	"testing"
)

func testFrame(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 7)
	}
	return img
}

func TestManagerCapabilities(t *testing.T) {
	caps := Instance().Capabilities()
	if len(caps) == 0 {
		t.Fatalf("expected at least one capability")
	}
	foundJPEG := false
	foundVP8 := false
	for _, cap := range caps {
		switch cap.Name {
		case "jpeg-software":
			foundJPEG = true
		case "vp8-software":
			foundVP8 = true
		}
	}
	if !foundJPEG {
		t.Fatalf("jpeg-software capability missing: %+v", caps)
	}
	if !foundVP8 {
		t.Fatalf("vp8-software capability missing: %+v", caps)
	}
}

func TestManagerEncodeDefault(t *testing.T) {
	frame := testFrame(128, 128)
	data, err := Instance().Encode(Request{
		Rect:  image.Rect(0, 0, 96, 96),
		Frame: frame,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected JPEG payload")
	}
	// JPEG SOI marker.
	if data[0] != 0xff || data[1] != 0xd8 {
		t.Fatalf("payload does not look like JPEG: %x", data[:2])
	}
}

func TestManagerEncodeUnknownEncoder(t *testing.T) {
	_, err := Instance().Encode(Request{
		Rect:    image.Rect(0, 0, 16, 16),
		Frame:   testFrame(32, 32),
		Encoder: "nvenc-hevc",
	})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected not-registered error, got %v", err)
	}
}

func TestJPEGEncoderRejectsBadRequests(t *testing.T) {
	enc := newSoftwareJPEGEncoder()
	if _, err := enc.Encode(Request{Rect: image.Rect(0, 0, 8, 8)}); err == nil {
		t.Fatalf("expected error for nil frame")
	}
	frame := testFrame(16, 16)
	if _, err := enc.Encode(Request{Frame: frame}); err == nil {
		t.Fatalf("expected error for empty rect")
	}
	if _, err := enc.Encode(Request{Frame: frame, Rect: image.Rect(0, 0, 64, 64)}); err == nil {
		t.Fatalf("expected error for rect outside frame")
	}
}

func TestOpenVideoEncoderUnknown(t *testing.T) {
	if _, err := Instance().OpenVideoEncoder("h264-mf", VideoConfig{}); err == nil {
		t.Fatalf("expected error for unknown factory")
	}
}
