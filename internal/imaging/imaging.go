// Package imaging normalizes uploaded images before they reach object storage.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// MaxDimension bounds both sides of a normalized image.
const MaxDimension = 1024

var ErrUnsupportedImage = errors.New("unsupported image")

// Normalize decodes a JPEG or PNG, scales it down to fit inside
// MaxDimension x MaxDimension keeping its aspect ratio, and re-encodes it as
// PNG. Images already inside the bound are re-encoded at their own size.
func Normalize(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := fit(src, MaxDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(src image.Image, bound int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= bound && h <= bound {
		return src
	}

	nw, nh := bound, bound
	if w >= h {
		nh = h * bound / w
	} else {
		nw = w * bound / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
