package sampler

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/ml"
	_ "github.com/ollama/ddpm/ml/backend/cpu"
	"github.com/ollama/ddpm/model"
	_ "github.com/ollama/ddpm/model/gaussian"
)

// flakyModel wraps a model and fails while fail is set.
type flakyModel struct {
	model.Model
	fail  bool
	calls int
}

func (m *flakyModel) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	m.calls++
	if m.fail {
		return nil, errors.New("device lost")
	}
	return m.Model.Predict(ctx, timestep, image)
}

func newConfig(t *testing.T, timesteps int, shape ...int) Config {
	t.Helper()

	b, err := ml.NewBackend("cpu", ml.BackendParams{})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	var s *diffusion.NoiseSchedule
	if timesteps == 4 {
		s, err = diffusion.BuildSchedule(0.1, 0.4, 4)
	} else {
		s, err = diffusion.BuildSchedule(1e-4, 0.02, timesteps)
	}
	require.NoError(t, err)

	if len(shape) == 0 {
		shape = []int{1, 4, 4, 3}
	}

	m, err := model.New("gaussian", model.Options{
		Shape:    shape,
		Schedule: s,
		Params:   map[string]string{"mean": "0.5", "std": "0.25"},
	})
	require.NoError(t, err)

	return Config{
		Backend:  b,
		Schedule: s,
		Model:    m,
		Rand:     rand.New(rand.NewPCG(42, 1024)),
	}
}

func TestRunEmitsEveryStep(t *testing.T) {
	cfg := newConfig(t, 4)

	var steps []int
	var percents []float64
	err := Run(t.Context(), cfg, func(p Progress) error {
		steps = append(steps, p.Step)
		percents = append(percents, p.Percent)

		require.Len(t, p.Image, 1)
		require.Len(t, p.Image[0], 4)
		require.Len(t, p.Image[0][0], 4)
		require.Len(t, p.Image[0][0][0], 3)

		// the current image is the only live tensor while fn runs
		assert.Equal(t, 1, cfg.Backend.Live())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 1, 0}, steps)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, percents)
	assert.Zero(t, cfg.Backend.Live())
}

func TestRunConverges(t *testing.T) {
	cfg := newConfig(t, 1000, 1, 32, 32, 3)

	var final [][][][]float32
	err := Run(t.Context(), cfg, func(p Progress) error {
		if p.Step == 0 {
			final = p.Image
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, final)

	var sum, sq float64
	var n int
	for _, row := range final[0] {
		for _, px := range row {
			for _, v := range px {
				sum += float64(v)
				sq += float64(v) * float64(v)
				n++
			}
		}
	}

	target, ok := cfg.Model.(interface{ Expected() (float64, float64) })
	require.True(t, ok, "gaussian model exposes Expected")
	wantMean, wantStd := target.Expected()
	assert.Equal(t, 0.5, wantMean)
	assert.Equal(t, 0.25, wantStd)

	mean := sum / float64(n)
	std := math.Sqrt(sq/float64(n) - mean*mean)
	assert.InDelta(t, wantMean, mean, 0.03)
	assert.InDelta(t, wantStd, std, 0.03)
}

func TestRunStops(t *testing.T) {
	t.Run("callback error", func(t *testing.T) {
		cfg := newConfig(t, 10)
		stop := errors.New("client gone")

		calls := 0
		err := Run(t.Context(), cfg, func(p Progress) error {
			calls++
			if p.Step == 7 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 3, calls)
		assert.Zero(t, cfg.Backend.Live())
	})

	t.Run("cancelled", func(t *testing.T) {
		cfg := newConfig(t, 10)
		ctx, cancel := context.WithCancel(t.Context())

		err := Run(ctx, cfg, func(p Progress) error {
			if p.Step == 5 {
				cancel()
			}
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, cfg.Backend.Live())
	})

	t.Run("model failure", func(t *testing.T) {
		cfg := newConfig(t, 10)
		cfg.Model = &flakyModel{Model: cfg.Model, fail: true}

		err := Run(t.Context(), cfg, func(Progress) error { return nil })
		assert.ErrorIs(t, err, diffusion.ErrModelInference)
		assert.Zero(t, cfg.Backend.Live())
	})
}

func TestRunRequiresCollaborators(t *testing.T) {
	err := Run(t.Context(), Config{}, func(Progress) error { return nil })
	assert.Error(t, err)
}
