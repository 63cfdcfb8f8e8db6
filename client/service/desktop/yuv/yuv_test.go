package yuv

import "testing"

func solidABGR(width, height int, r, g, b, a byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[i*4] = r
		buf[i*4+1] = g
		buf[i*4+2] = b
		buf[i*4+3] = a
	}
	return buf
}

func average(plane []byte) int {
	if len(plane) == 0 {
		return 0
	}
	sum := 0
	for _, v := range plane {
		sum += int(v)
	}
	return sum / len(plane)
}

func TestABGRToI420White(t *testing.T) {
	const width, height = 64, 64
	src := solidABGR(width, height, 255, 255, 255, 255)
	dst := NewI420(width, height)
	if err := ABGRToI420(src, width*4, dst, width, height); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if avg := average(dst.Y); avg <= 200 {
		t.Fatalf("white frame should have high luma, got average %d", avg)
	}
	if avg := average(dst.U); avg < 108 || avg > 148 {
		t.Fatalf("white frame U should be near 128, got %d", avg)
	}
	if avg := average(dst.V); avg < 108 || avg > 148 {
		t.Fatalf("white frame V should be near 128, got %d", avg)
	}
}

func TestABGRToI420Black(t *testing.T) {
	const width, height = 64, 64
	src := solidABGR(width, height, 0, 0, 0, 255)
	dst := NewI420(width, height)
	if err := ABGRToI420(src, width*4, dst, width, height); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if avg := average(dst.Y); avg >= 50 {
		t.Fatalf("black frame should have low luma, got average %d", avg)
	}
}

func TestABGRToI420Red(t *testing.T) {
	const width, height = 64, 64
	src := solidABGR(width, height, 255, 0, 0, 255)
	dst := NewI420(width, height)
	if err := ABGRToI420(src, width*4, dst, width, height); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if avg := average(dst.V); avg <= 140 {
		t.Fatalf("red frame should have high V, got average %d", avg)
	}
}

func TestABGRToI420TinyFrame(t *testing.T) {
	// 2x2 is the smallest complete 4:2:0 frame: one chroma sample total.
	const width, height = 2, 2
	src := solidABGR(width, height, 128, 128, 128, 255)
	dst := NewI420(width, height)
	if err := ABGRToI420(src, width*4, dst, width, height); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if len(dst.U) != 1 || len(dst.V) != 1 {
		t.Fatalf("expected single chroma sample, got U=%d V=%d", len(dst.U), len(dst.V))
	}
	for i, v := range dst.Y {
		if v < 100 || v > 160 {
			t.Fatalf("gray frame luma out of range at %d: %d", i, v)
		}
	}
}

func TestABGRToI420InvalidDimensions(t *testing.T) {
	src := solidABGR(4, 4, 10, 20, 30, 255)
	dst := NewI420(4, 4)
	if err := ABGRToI420(src, 16, dst, 0, 4); err == nil {
		t.Fatalf("expected error for zero width")
	}
	if err := ABGRToI420(src, 16, dst, 4, 0); err == nil {
		t.Fatalf("expected error for zero height")
	}
}

func TestABGRToI420NilDestination(t *testing.T) {
	src := solidABGR(4, 4, 10, 20, 30, 255)
	dst := &I420Image{StrideY: 4, StrideU: 2, StrideV: 2, Width: 4, Height: 4}
	err := ABGRToI420(src, 16, dst, 4, 4)
	if err == nil {
		t.Fatalf("expected error for nil destination planes")
	}
	if _, ok := err.(ConversionError); !ok {
		t.Fatalf("expected untranslated ConversionError, got %T", err)
	}
}

func TestABGRToNV12Layout(t *testing.T) {
	const width, height = 32, 32
	src := solidABGR(width, height, 255, 255, 255, 255)
	dst := NewNV12(width, height)
	if err := ABGRToNV12(src, width*4, dst, width, height); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if avg := average(dst.Y); avg <= 200 {
		t.Fatalf("white frame should have high luma, got average %d", avg)
	}
	// Achromatic input: interleaved UV samples all hover around 128.
	if avg := average(dst.UV); avg < 108 || avg > 148 {
		t.Fatalf("white frame UV should be near 128, got %d", avg)
	}
	if len(dst.UV) != width*height/2 {
		t.Fatalf("unexpected UV plane size %d", len(dst.UV))
	}
}

func TestABGRToNV12InvalidInput(t *testing.T) {
	dst := NewNV12(4, 4)
	if err := ABGRToNV12(nil, 16, dst, 4, 4); err == nil {
		t.Fatalf("expected error for nil source")
	}
}
