package desktop

import (
	"bytes"
	"encoding/binary"
	"image"

	"Mirage/client/service/desktop/encoder"
)

// block packet format:
// +-------------+----------+---------+---------+---------+---------+-------+
// | body length | img type | x       | y       | width   | height  | image |
// +-------------+----------+---------+---------+---------+---------+-------+
// | 2 bytes     | 2 bytes  | 2 bytes | 2 bytes | 2 bytes | 2 bytes | -     |
// +-------------+----------+---------+---------+---------+---------+-------+

// img type:
// 0: raw RGBA
// 1: compressed (jpeg)

const (
	blockSize    = 96
	imgTypeRaw   = 0
	imgTypeJPEG  = 1
	blockHeader  = 12
	rawPixelSize = 4
)

// diffRegions returns the block rectangles whose pixels changed between two
// frames of identical geometry. Blocks are scanned in two interleaved row
// passes so a full-screen change streams progressively.
func diffRegions(img, prev *image.RGBA) []image.Rectangle {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	result := make([]image.Rectangle, 0)
	for _, offset := range []int{0, blockSize} {
		for y := offset; y < height; y += blockSize * 2 {
			bh := blockSize
			if y+bh > height {
				bh = height - y
			}
			for x := 0; x < width; x += blockSize {
				bw := blockSize
				if x+bw > width {
					bw = width - x
				}
				rect := image.Rect(x, y, x+bw, y+bh)
				if blockChanged(img, prev, rect) {
					result = append(result, rect)
				}
			}
		}
	}
	return result
}

// blockChanged samples every other row of the block; a half-height scan is
// enough to catch any visible change while halving compare cost.
func blockChanged(img, prev *image.RGBA, rect image.Rectangle) bool {
	if prev == nil || img.Rect != prev.Rect {
		return true
	}
	rowBytes := rect.Dx() * rawPixelSize
	for y := rect.Min.Y; y < rect.Max.Y; y += 2 {
		start := img.PixOffset(rect.Min.X, y)
		if !bytes.Equal(img.Pix[start:start+rowBytes], prev.Pix[start:start+rowBytes]) {
			return true
		}
	}
	return false
}

// splitFullImage slices a frame into block packets without diffing, used for
// the first frame of a session.
func splitFullImage(img *image.RGBA, quality int) [][]byte {
	if img == nil {
		return nil
	}
	rect := img.Rect
	result := make([][]byte, 0)
	for y := rect.Min.Y; y < rect.Max.Y; y += blockSize {
		bh := blockSize
		if y+bh > rect.Max.Y {
			bh = rect.Max.Y - y
		}
		for x := rect.Min.X; x < rect.Max.X; x += blockSize {
			bw := blockSize
			if x+bw > rect.Max.X {
				bw = rect.Max.X - x
			}
			blockRect := image.Rect(x, y, x+bw, y+bh)
			if packet, err := encodeBlock(img, blockRect, quality); err == nil {
				result = append(result, packet)
			}
		}
	}
	return result
}

// encodeBlock JPEG-compresses one block through the encoder manager and
// frames it with the block packet header.
func encodeBlock(img *image.RGBA, rect image.Rectangle, quality int) ([]byte, error) {
	data, err := encoder.Instance().Encode(encoder.Request{
		Rect:    rect,
		Frame:   img,
		Quality: quality,
	})
	if err != nil {
		return nil, err
	}
	return makeBlockPacket(data, rect, imgTypeJPEG), nil
}

func makeBlockPacket(block []byte, rect image.Rectangle, imgType int) []byte {
	buf := make([]byte, blockHeader, blockHeader+len(block))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(block)+blockHeader-2))
	binary.BigEndian.PutUint16(buf[2:4], uint16(imgType))
	binary.BigEndian.PutUint16(buf[4:6], uint16(rect.Min.X))
	binary.BigEndian.PutUint16(buf[6:8], uint16(rect.Min.Y))
	binary.BigEndian.PutUint16(buf[8:10], uint16(rect.Dx()))
	binary.BigEndian.PutUint16(buf[10:12], uint16(rect.Dy()))
	return append(buf, block...)
}
