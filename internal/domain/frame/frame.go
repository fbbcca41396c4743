// Package frame holds the raster convention shared by the pipeline: frames are
// *image.RGBA in RGB channel order with opaque alpha, serialized as baseline JPEG.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

const ContentType = "image/jpeg"

// ToRGBA returns img as a fresh *image.RGBA with bounds rebased at the origin.
// The result never aliases img's pixels.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// EncodeJPEG serializes img at the encoder's default quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeJPEG(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return ToRGBA(img), nil
}
