//go:build !cgo

package yuv

// Software fallback used when the module is built without cgo. It follows
// the BT.601 studio-swing transform and mirrors libyuv's observable
// contract: 0 for success, -1 for null buffers or non-positive dimensions.

// ABGRToI420 converts a packed ABGR frame (RGBA byte order in memory) into
// planar YUV 4:2:0 in software.
func ABGRToI420(src []byte, srcStride int, dst *I420Image, width, height int) error {
	if width <= 0 || height <= 0 || len(src) == 0 ||
		dst == nil || len(dst.Y) == 0 || len(dst.U) == 0 || len(dst.V) == 0 {
		return ConversionError(-1)
	}
	if len(src) < srcStride*(height-1)+width*4 {
		return ConversionError(-1)
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			r, g, b := sampleABGR(src, srcStride, col, row)
			dst.Y[row*dst.StrideY+col] = lumaBT601(r, g, b)
		}
	}
	for row := 0; row < height; row += 2 {
		for col := 0; col < width; col += 2 {
			u, v := chromaBT601(src, srcStride, col, row, width, height)
			dst.U[(row/2)*dst.StrideU+col/2] = u
			dst.V[(row/2)*dst.StrideV+col/2] = v
		}
	}
	return nil
}

// ABGRToNV12 converts a packed ABGR frame into semi-planar YUV 4:2:0 in
// software, interleaving the chroma samples as U then V.
func ABGRToNV12(src []byte, srcStride int, dst *NV12Image, width, height int) error {
	if width <= 0 || height <= 0 || len(src) == 0 ||
		dst == nil || len(dst.Y) == 0 || len(dst.UV) == 0 {
		return ConversionError(-1)
	}
	if len(src) < srcStride*(height-1)+width*4 {
		return ConversionError(-1)
	}
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			r, g, b := sampleABGR(src, srcStride, col, row)
			dst.Y[row*dst.StrideY+col] = lumaBT601(r, g, b)
		}
	}
	for row := 0; row < height; row += 2 {
		for col := 0; col < width; col += 2 {
			u, v := chromaBT601(src, srcStride, col, row, width, height)
			base := (row / 2) * dst.StrideUV
			dst.UV[base+col] = u
			dst.UV[base+col+1] = v
		}
	}
	return nil
}

func sampleABGR(src []byte, stride, col, row int) (r, g, b float32) {
	idx := row*stride + col*4
	return float32(src[idx]), float32(src[idx+1]), float32(src[idx+2])
}

func lumaBT601(r, g, b float32) byte {
	return clamp255(0.257*r + 0.504*g + 0.098*b + 16.0)
}

// chromaBT601 averages the up-to-2x2 block anchored at (col,row).
func chromaBT601(src []byte, stride, col, row, width, height int) (byte, byte) {
	var uAcc, vAcc float32
	var count int
	for dy := 0; dy < 2; dy++ {
		y := row + dy
		if y >= height {
			continue
		}
		for dx := 0; dx < 2; dx++ {
			x := col + dx
			if x >= width {
				continue
			}
			r, g, b := sampleABGR(src, stride, x, y)
			uAcc += -0.148*r - 0.291*g + 0.439*b + 128.0
			vAcc += 0.439*r - 0.368*g - 0.071*b + 128.0
			count++
		}
	}
	if count == 0 {
		return 128, 128
	}
	return clamp255(uAcc / float32(count)), clamp255(vAcc / float32(count))
}

func clamp255(v float32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
