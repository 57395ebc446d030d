// tensor.go - Tensor-Struktur und elementweise Operationen
// Enthaelt: Tensor struct, Shape/Floats/Ints, Add, Sub, Mul, Div, Scale

package cpu

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/ollama/ddpm/ml"
)

// Tensor is a dense row-major tensor backed by float64 storage.
type Tensor struct {
	b *Backend

	dtype    ml.DType
	shape    []int
	data     []float64
	released bool
}

func (t *Tensor) check() {
	if t.released {
		panic("cpu: use of released tensor")
	}
}

func (t *Tensor) Dim(n int) int {
	if n < len(t.shape) {
		return t.shape[n]
	}
	return 1
}

func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

func (t *Tensor) DType() ml.DType {
	return t.dtype
}

func (t *Tensor) Floats() []float32 {
	t.check()
	out := make([]float32, len(t.data))
	for i, v := range t.data {
		out[i] = float32(v)
	}
	return out
}

func (t *Tensor) Ints() []int32 {
	t.check()
	out := make([]int32, len(t.data))
	for i, v := range t.data {
		out[i] = int32(v)
	}
	return out
}

// binary runs op on a copy of t and t2 and stores the result in ctx.
func (t *Tensor) binary(ctx ml.Context, t2 ml.Tensor, op func(dst, s []float64)) ml.Tensor {
	t.check()
	other := t2.(*Tensor)
	other.check()

	if !slices.Equal(t.shape, other.shape) {
		panic(fmt.Errorf("cpu: shape mismatch %v vs %v", t.shape, other.shape))
	}

	dst := slices.Clone(t.data)
	op(dst, other.data)
	return ctx.(*Context).alloc(t.dtype, t.shape, dst)
}

func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, floats.Add)
}

func (t *Tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, floats.Sub)
}

func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, floats.Mul)
}

func (t *Tensor) Div(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, floats.Div)
}

func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	t.check()
	dst := slices.Clone(t.data)
	floats.Scale(s, dst)
	return ctx.(*Context).alloc(t.dtype, t.shape, dst)
}
