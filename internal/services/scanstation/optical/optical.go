// Package optical reads QR codes out of camera frames.
package optical

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// MaxPixels bounds the frame size a single decode will look at.
const MaxPixels = 4096 * 4096

// QR decodes QR codes. It does not interpret the decoded text.
type QR struct {
	reader gozxing.Reader
}

// NewQR returns a QR decoder.
func NewQR() *QR {
	return &QR{reader: qrcode.NewQRCodeReader()}
}

// Decode returns the text of the QR code in frame, if any.
func (q *QR) Decode(frame image.Image) (string, bool) {
	if frame == nil {
		return "", false
	}
	bounds := frame.Bounds()
	if bounds.Empty() || bounds.Dx()*bounds.Dy() > MaxPixels {
		return "", false
	}
	bitmap, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", false
	}
	result, err := q.reader.Decode(bitmap, nil)
	if err != nil || result == nil {
		return "", false
	}
	return result.GetText(), true
}

// DecodeGray decodes an 8-bit grayscale frame buffer of width x height.
func (q *QR) DecodeGray(pixels []byte, width, height int) (string, bool) {
	if width <= 0 || height <= 0 || len(pixels) < width*height {
		return "", false
	}
	frame := &image.Gray{
		Pix:    pixels[:width*height],
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}
	return q.Decode(frame)
}
