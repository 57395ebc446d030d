// nested.go - Materialisierung von Bild-Tensoren
// Enthaelt: Nested (Tensor -> [][][][]float32), FromNested (Umkehrung)
package ml

import "fmt"

// Nested materializes a rank-4 tensor [N, H, W, C] into nested slices.
func Nested(t Tensor) ([][][][]float32, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("nested: expected rank 4 tensor, got shape %v", shape)
	}

	data := t.Floats()
	n, h, w, c := shape[0], shape[1], shape[2], shape[3]

	out := make([][][][]float32, n)
	i := 0
	for b := range n {
		out[b] = make([][][]float32, h)
		for y := range h {
			out[b][y] = make([][]float32, w)
			for x := range w {
				out[b][y][x] = data[i : i+c : i+c]
				i += c
			}
		}
	}

	return out, nil
}

// FromNested flattens nested slices produced by Nested back into a tensor
// owned by ctx. All inner slices must have the same length.
func FromNested(ctx Context, img [][][][]float32) (Tensor, error) {
	if len(img) == 0 || len(img[0]) == 0 || len(img[0][0]) == 0 {
		return nil, fmt.Errorf("nested: empty image")
	}

	n, h, w, c := len(img), len(img[0]), len(img[0][0]), len(img[0][0][0])
	data := make([]float32, 0, n*h*w*c)
	for _, rows := range img {
		if len(rows) != h {
			return nil, fmt.Errorf("nested: ragged height %d, expected %d", len(rows), h)
		}
		for _, row := range rows {
			if len(row) != w {
				return nil, fmt.Errorf("nested: ragged width %d, expected %d", len(row), w)
			}
			for _, px := range row {
				if len(px) != c {
					return nil, fmt.Errorf("nested: ragged channels %d, expected %d", len(px), c)
				}
				data = append(data, px...)
			}
		}
	}

	return ctx.FromFloats(data, n, h, w, c), nil
}
