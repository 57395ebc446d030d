// gaussian.go - Analytischer Rauschschaetzer fuer Gauss-verteilte Daten
//
// Fuer Daten x0 ~ N(mean, std^2) pro Element ist die bedingte Erwartung
// des Rauschens geschlossen loesbar:
//
//	eps(x_t, t) = sqrt(1-abar) / (abar*std^2 + 1 - abar) * (x_t - sqrt(abar)*mean)
//
// Das Modell braucht keine Gewichte und dient als Standardmodell sowie
// als End-to-End-Fixture.
package gaussian

import (
	"fmt"
	"slices"

	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
)

func init() {
	model.Register("gaussian", New)
}

// Model is the optimal noise predictor for an isotropic Gaussian target.
type Model struct {
	shape []int
	mean  float64
	std   float64

	sqrtAlphaCumprod         []float64
	sqrtOneMinusAlphaCumprod []float64
	alphaCumprod             []float64
}

// New reads the "mean" (default 0) and "std" (default 0.5) parameters.
func New(opts model.Options) (model.Model, error) {
	if opts.Schedule == nil {
		return nil, fmt.Errorf("gaussian: a noise schedule is required")
	}

	mean, err := opts.Float("mean", 0)
	if err != nil {
		return nil, fmt.Errorf("gaussian: %w", err)
	}

	std, err := opts.Float("std", 0.5)
	if err != nil {
		return nil, fmt.Errorf("gaussian: %w", err)
	}
	if !(std >= 0) {
		return nil, fmt.Errorf("gaussian: std must be >= 0, got %v", std)
	}

	return &Model{
		shape:                    slices.Clone(opts.Shape),
		mean:                     mean,
		std:                      std,
		sqrtAlphaCumprod:         opts.Schedule.SqrtAlphaCumprods(),
		sqrtOneMinusAlphaCumprod: opts.Schedule.SqrtOneMinusAlphaCumprods(),
		alphaCumprod:             opts.Schedule.AlphaCumprods(),
	}, nil
}

func (m *Model) Shape() []int { return slices.Clone(m.shape) }

func (m *Model) Close() error { return nil }

func (m *Model) Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error) {
	ts := timestep.Ints()
	if len(ts) != 1 {
		return nil, fmt.Errorf("gaussian: expected scalar timestep, got %d values", len(ts))
	}

	t := int(ts[0])
	if t < 0 || t >= len(m.alphaCumprod) {
		return nil, fmt.Errorf("gaussian: timestep %d out of range", t)
	}

	if !slices.Equal(image.Shape(), m.shape) {
		return nil, fmt.Errorf("gaussian: image shape %v, model expects %v", image.Shape(), m.shape)
	}

	abar := m.alphaCumprod[t]
	gain := m.sqrtOneMinusAlphaCumprod[t] / (abar*m.std*m.std + 1 - abar)
	offset := m.sqrtAlphaCumprod[t] * m.mean

	x := image.Floats()
	eps := make([]float32, len(x))
	for i, v := range x {
		eps[i] = float32(gain * (float64(v) - offset))
	}

	return ctx.FromFloats(eps, m.shape...), nil
}

// Expected returns the mean and standard deviation of the target
// distribution, which a long enough sampling run converges to.
func (m *Model) Expected() (mean, std float64) {
	return m.mean, m.std
}

var _ model.Model = (*Model)(nil)
