// context.go - Context und Tensor Interfaces fuer die Tensor-Engine
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und
// die Besitz-Kontexte, ueber die Tensoren freigegeben werden.
package ml

import "math/rand/v2"

// Context owns every tensor created through it, including the results of
// tensor operations that name it as their destination. Close releases all
// of them at once. A tensor must not be used after its context is closed.
type Context interface {
	Zeros(dtype DType, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor

	// RandomNormal fills a new tensor with independent standard-normal
	// samples drawn from rng. A nil rng uses the global source.
	RandomNormal(rng *rand.Rand, shape ...int) Tensor

	// Len reports how many tensors the context currently owns.
	Len() int

	Close()
}

// Tensor represents a multi-dimensional array. Operations allocate their
// result in ctx and leave the receiver untouched.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType

	Floats() []float32
	Ints() []int32

	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Div(ctx Context, t2 Tensor) Tensor
	Scale(ctx Context, s float64) Tensor
}
