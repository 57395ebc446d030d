// context.go - Context-Struktur und Allokation
// Enthaelt: Context struct, Zeros, FromFloats, FromInts, RandomNormal, Close

package cpu

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/ollama/ddpm/logutil"
	"github.com/ollama/ddpm/ml"
)

// Context is an arena of tensors. Close releases every tensor it owns.
type Context struct {
	b *Backend

	mu      sync.Mutex
	tensors []*Tensor
	closed  bool
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Errorf("cpu: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// alloc registers a new tensor with the context. data is taken over.
func (c *Context) alloc(dtype ml.DType, shape []int, data []float64) *Tensor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		panic("cpu: allocation in closed context")
	}

	t := &Tensor{
		b:     c.b,
		dtype: dtype,
		shape: append([]int(nil), shape...),
		data:  data,
	}
	c.tensors = append(c.tensors, t)
	c.b.live.Add(1)

	logutil.Trace("cpu alloc", "shape", t.shape, "dtype", dtype, "live", c.b.live.Load())
	return t
}

func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	return c.alloc(dtype, shape, make([]float64, numElements(shape)))
}

func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	if n := numElements(shape); n != len(s) {
		panic(fmt.Errorf("cpu: %d values do not fit shape %v", len(s), shape))
	}

	data := make([]float64, len(s))
	for i, v := range s {
		data[i] = float64(v)
	}
	return c.alloc(ml.DTypeF32, shape, data)
}

func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	if n := numElements(shape); n != len(s) {
		panic(fmt.Errorf("cpu: %d values do not fit shape %v", len(s), shape))
	}

	data := make([]float64, len(s))
	for i, v := range s {
		data[i] = float64(v)
	}
	return c.alloc(ml.DTypeI32, shape, data)
}

func (c *Context) RandomNormal(rng *rand.Rand, shape ...int) ml.Tensor {
	data := make([]float64, numElements(shape))
	for i := range data {
		if rng != nil {
			data[i] = rng.NormFloat64()
		} else {
			data[i] = rand.NormFloat64()
		}
	}
	return c.alloc(ml.DTypeF32, shape, data)
}

func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tensors)
}

// Close releases all tensors of the context. It is safe to call twice.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	for _, t := range c.tensors {
		t.data = nil
		t.released = true
	}
	c.b.live.Add(-int64(len(c.tensors)))
	logutil.Trace("cpu release", "tensors", len(c.tensors), "live", c.b.live.Load())

	c.tensors = nil
	c.closed = true
}
