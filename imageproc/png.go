// png.go - Rueck-Transformation von Bild-Tensoren
// Enthaelt: ToImage, EncodePNG, NestedToImage

package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// fromUnit maps [-1, 1] to [0, 255] with clamping.
func fromUnit(v float32) uint8 {
	f := (float64(v) + 1) * 255 / 2
	if math.IsNaN(f) {
		return 0
	}
	return uint8(math.Round(min(max(f, 0), 255)))
}

// ToImage converts an [H, W, C] buffer in [-1, 1] to an image. C must be
// 1, 3 or 4.
func ToImage(data []float32, h, w, c int) (image.Image, error) {
	if len(data) != h*w*c {
		return nil, fmt.Errorf("imageproc: %d values do not fit %dx%dx%d", len(data), h, w, c)
	}

	rect := image.Rect(0, 0, w, h)
	switch c {
	case 1:
		img := image.NewGray(rect)
		for i, v := range data {
			img.Pix[i] = fromUnit(v)
		}
		return img, nil
	case 3, 4:
		img := image.NewNRGBA(rect)
		for y := range h {
			for x := range w {
				i := (y*w + x) * c
				px := color.NRGBA{fromUnit(data[i]), fromUnit(data[i+1]), fromUnit(data[i+2]), 255}
				if c == 4 {
					px.A = fromUnit(data[i+3])
				}
				img.SetNRGBA(x, y, px)
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("imageproc: unsupported channel count %d", c)
	}
}

// NestedToImage converts the first image of an [N][H][W][C] array.
func NestedToImage(nested [][][][]float32) (image.Image, error) {
	if len(nested) == 0 || len(nested[0]) == 0 || len(nested[0][0]) == 0 {
		return nil, fmt.Errorf("imageproc: empty image")
	}

	rows := nested[0]
	h, w, c := len(rows), len(rows[0]), len(rows[0][0])
	data := make([]float32, 0, h*w*c)
	for _, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("imageproc: ragged row of width %d, expected %d", len(row), w)
		}
		for _, px := range row {
			if len(px) != c {
				return nil, fmt.Errorf("imageproc: ragged pixel with %d channels, expected %d", len(px), c)
			}
			data = append(data, px...)
		}
	}
	return ToImage(data, h, w, c)
}

// WritePNG encodes the first image of nested as PNG.
func WritePNG(w io.Writer, nested [][][][]float32) error {
	img, err := NestedToImage(nested)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// EncodePNG returns the PNG bytes of the first image of nested.
func EncodePNG(nested [][][][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, nested); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
