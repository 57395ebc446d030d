package gaussian

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/ml"
	_ "github.com/ollama/ddpm/ml/backend/cpu"
	"github.com/ollama/ddpm/model"
)

func setup(t *testing.T, params map[string]string) (ml.Backend, model.Model, *diffusion.NoiseSchedule) {
	t.Helper()

	b, err := ml.NewBackend("cpu", ml.BackendParams{})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	s, err := diffusion.BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	m, err := model.New("gaussian", model.Options{
		Shape:    []int{1, 1, 2, 1},
		Schedule: s,
		Params:   params,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return b, m, s
}

func TestPredict(t *testing.T) {
	b, m, s := setup(t, map[string]string{"mean": "0.5", "std": "0.25"})

	ctx := b.NewContext()
	defer ctx.Close()

	const step = 2
	abar := s.AlphaCumprod(step)
	center := math.Sqrt(abar) * 0.5

	image := ctx.FromFloats([]float32{float32(center), float32(center + 1)}, 1, 1, 2, 1)
	eps, err := m.Predict(ctx, ctx.FromInts([]int32{step}, 1), image)
	require.NoError(t, err)

	gain := math.Sqrt(1-abar) / (abar*0.0625 + 1 - abar)
	assert.InDeltaSlice(t, []float32{0, float32(gain)}, eps.Floats(), 1e-6)
	assert.Equal(t, []int{1, 1, 2, 1}, eps.Shape())
}

// With std = 1 and mean = 0 the target equals the noise prior, so the
// optimal prediction is sqrt(1 - abar) * x.
func TestPredictStandardNormal(t *testing.T) {
	b, m, s := setup(t, map[string]string{"std": "1"})

	ctx := b.NewContext()
	defer ctx.Close()

	image := ctx.FromFloats([]float32{2, -1}, 1, 1, 2, 1)
	eps, err := m.Predict(ctx, ctx.FromInts([]int32{0}, 1), image)
	require.NoError(t, err)

	k := s.SqrtOneMinusAlphaCumprod(0)
	assert.InDeltaSlice(t, []float32{float32(2 * k), float32(-k)}, eps.Floats(), 1e-6)
}

func TestPredictErrors(t *testing.T) {
	b, m, _ := setup(t, nil)

	ctx := b.NewContext()
	defer ctx.Close()

	image := ctx.Zeros(ml.DTypeF32, 1, 1, 2, 1)

	_, err := m.Predict(ctx, ctx.FromInts([]int32{4}, 1), image)
	assert.Error(t, err)

	_, err = m.Predict(ctx, ctx.FromInts([]int32{1, 2}, 2), image)
	assert.Error(t, err)

	_, err = m.Predict(ctx, ctx.FromInts([]int32{1}, 1), ctx.Zeros(ml.DTypeF32, 1, 2, 2, 1))
	assert.Error(t, err)
}

func TestNewOptions(t *testing.T) {
	s, err := diffusion.BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	_, err = model.New("gaussian", model.Options{Shape: []int{1, 2, 2, 3}})
	assert.Error(t, err, "schedule missing")

	_, err = model.New("gaussian", model.Options{Shape: []int{1, 2, 2, 3}, Schedule: s, Params: map[string]string{"std": "wide"}})
	assert.Error(t, err)

	_, err = model.New("gaussian", model.Options{Shape: []int{1, 2, 2, 3}, Schedule: s, Params: map[string]string{"std": "-1"}})
	assert.Error(t, err)

	_, err = model.New("gaussian", model.Options{Shape: []int{2, 2}, Schedule: s})
	assert.ErrorIs(t, err, model.ErrInvalidShape)

	_, err = model.New("unet", model.Options{Shape: []int{1, 2, 2, 3}, Schedule: s})
	assert.ErrorIs(t, err, model.ErrUnknownModel)

	assert.Contains(t, model.Names(), "gaussian")
}
