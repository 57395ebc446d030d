// MODUL: onnx/layout
// ZWECK: Datenlayout und Zahlenformat zwischen Sampler und ONNX-Graph
// INPUT: NHWC float32 Puffer
// OUTPUT: NCHW Puffer, fp16 Bytes und zurueck
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: pdevine/tensor, x448/float16
// HINWEISE: Der Sampler arbeitet immer in NHWC; Keras-Exporte ebenfalls.

package onnx

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pdevine/tensor"
	"github.com/x448/float16"
)

// Layout is the dimension order a graph expects for its image input.
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// ParseLayout parses "nhwc" or "nchw"; empty means NHWC.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(s)) {
	case "", LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("onnx: unknown layout %q", s)
	}
}

// permute returns data with its axes reordered. shape describes data.
func permute(data []float32, shape []int, axes ...int) ([]float32, error) {
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(append([]float32(nil), data...)))
	if err := t.T(axes...); err != nil {
		return nil, err
	}
	if err := t.Transpose(); err != nil {
		return nil, err
	}

	out, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected tensor backing %T", t.Data())
	}
	return out, nil
}

// ToNCHW converts a [N, H, W, C] buffer to [N, C, H, W].
func ToNCHW(data []float32, n, h, w, c int) ([]float32, error) {
	return permute(data, []int{n, h, w, c}, 0, 3, 1, 2)
}

// FromNCHW converts a [N, C, H, W] buffer to [N, H, W, C].
func FromNCHW(data []float32, n, c, h, w int) ([]float32, error) {
	return permute(data, []int{n, c, h, w}, 0, 2, 3, 1)
}

// EncodeFP16 packs float32 values as little-endian IEEE 754 half floats.
func EncodeFP16(data []float32) []byte {
	out := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// DecodeFP16 unpacks little-endian half floats.
func DecodeFP16(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
	}
	return out
}

// DecodeFP16Bits converts raw half-float bit patterns.
func DecodeFP16Bits(bits []uint16) []float32 {
	out := make([]float32, len(bits))
	for i, b := range bits {
		out[i] = float16.Frombits(b).Float32()
	}
	return out
}
