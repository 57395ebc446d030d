package diffusion

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ddpm/ml"
	_ "github.com/ollama/ddpm/ml/backend/cpu"
)

// constPredictor predicts the same noise value everywhere and records the
// timestep it was called with.
type constPredictor struct {
	value float32
	seen  []int32
}

func (p *constPredictor) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	p.seen = append(p.seen, timestep.Ints()...)

	data := make([]float32, len(image.Floats()))
	for i := range data {
		data[i] = p.value
	}
	return ctx.FromFloats(data, image.Shape()...), nil
}

type failingPredictor struct{}

func (failingPredictor) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	// allocate something first so a leak would show up in Live()
	ctx.Zeros(ml.DTypeF32, image.Shape()...)
	return nil, errors.New("session run failed")
}

type wrongShapePredictor struct{}

func (wrongShapePredictor) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	return ctx.Zeros(ml.DTypeF32, 1, 1, 1, 1), nil
}

func newTestBackend(t *testing.T) ml.Backend {
	t.Helper()
	b, err := ml.NewBackend("cpu", ml.BackendParams{})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestReverseStepFormula(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	out := b.NewContext()
	defer out.Close()

	input := []float32{0.5, -0.25, 1, 0, -1, 0.75}
	image := out.FromFloats(input, 1, 1, 2, 3)

	p := &constPredictor{value: 0.2}
	const step = 2

	got, err := ReverseStep(b, out, s, p, image, step, rand.New(rand.NewPCG(7, 11)))
	require.NoError(t, err)
	assert.Equal(t, []int32{step}, p.seen)
	assert.Equal(t, []int{1, 1, 2, 3}, got.Shape())

	rng := rand.New(rand.NewPCG(7, 11))
	coef := 0.3 / math.Sqrt(1-0.504)
	for i, x := range input {
		want := (float64(x)-coef*0.2)/math.Sqrt(0.7) + s.Stddev(step)*rng.NormFloat64()
		assert.InDelta(t, want, got.Floats()[i], 1e-5, "element %d", i)
	}
}

func TestReverseStepAddsNoiseAtZero(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	out := b.NewContext()
	defer out.Close()

	image := out.FromFloats([]float32{0.3, 0.3}, 1, 1, 1, 2)
	got, err := ReverseStep(b, out, s, &constPredictor{}, image, 0, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	// stddev[0] is 1e-10, far below float32 resolution around 0.3/sqrt(0.9)
	want := float32(0.3 / math.Sqrt(0.9))
	for _, v := range got.Floats() {
		assert.InDelta(t, want, v, 1e-6)
	}
}

func TestReverseStepReleasesIntermediates(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(1e-4, 0.02, 10)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 4))
	ctx := b.NewContext()
	image := ctx.RandomNormal(rng, 1, 4, 4, 3)

	for step := s.Timesteps() - 1; step >= 0; step-- {
		next := b.NewContext()
		out, err := ReverseStep(b, next, s, &constPredictor{value: 0.1}, image, step, rng)
		require.NoError(t, err)

		ctx.Close()
		ctx, image = next, out

		assert.Equal(t, 1, b.Live(), "step %d", step)
	}

	ctx.Close()
	assert.Zero(t, b.Live())
}

func TestReverseStepModelFailure(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	out := b.NewContext()
	defer out.Close()
	image := out.Zeros(ml.DTypeF32, 1, 2, 2, 1)

	for name, p := range map[string]Predictor{
		"error":       failingPredictor{},
		"wrong shape": wrongShapePredictor{},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReverseStep(b, out, s, p, image, 3, nil)
			assert.ErrorIs(t, err, ErrModelInference)
			assert.Equal(t, 1, b.Live())
			assert.Equal(t, 1, out.Len())
		})
	}
}

func TestReverseStepInvalidTimestep(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	out := b.NewContext()
	defer out.Close()
	image := out.Zeros(ml.DTypeF32, 1, 1, 1, 1)

	for _, step := range []int{-1, 4, 100} {
		_, err := ReverseStep(b, out, s, &constPredictor{}, image, step, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument, "step %d", step)
	}
	assert.Equal(t, 1, b.Live())
}

func TestForwardNoise(t *testing.T) {
	b := newTestBackend(t)
	s, err := BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	out := b.NewContext()
	defer out.Close()

	x0 := out.FromFloats([]float32{1, -1}, 1, 1, 1, 2)
	noise := out.FromFloats([]float32{0.5, 0.5}, 1, 1, 1, 2)

	xt, err := ForwardNoise(b, out, s, x0, noise, 1, nil)
	require.NoError(t, err)

	a := math.Sqrt(0.72)
	n := math.Sqrt(0.28)
	assert.InDeltaSlice(t, []float64{a + 0.5*n, -a + 0.5*n}, toFloat64(xt.Floats()), 1e-6)
	assert.Equal(t, 3, b.Live())

	_, err = ForwardNoise(b, out, s, x0, out.Zeros(ml.DTypeF32, 3), 1, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func toFloat64(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
