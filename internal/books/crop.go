package books

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

// cropResult is one rendered slice crop.
type cropResult struct {
	PNG      []byte
	HeightPx int
}

// cropPage renders the vertical band [yStart, yEnd] (percent of page
// height) of a page image to PNG.
func cropPage(data []byte, yStartPercent, yEndPercent float64) (*cropResult, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}

	bounds := src.Bounds()
	height := bounds.Dy()
	y0 := bounds.Min.Y + int(float64(height)*yStartPercent/100)
	y1 := bounds.Min.Y + int(float64(height)*yEndPercent/100)
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if y1 <= y0 {
		return &cropResult{HeightPx: 0}, nil
	}

	rect := image.Rect(bounds.Min.X, y0, bounds.Max.X, y1)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), src, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return &cropResult{PNG: buf.Bytes(), HeightPx: rect.Dy()}, nil
}
