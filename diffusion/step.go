// step.go - Rueckwaerts-Schritt und Vorwaerts-Verrauschung
//
// Dieses Modul enthaelt:
// - Predictor: Schnittstelle fuer das Rauschvorhersage-Modell
// - ReverseStep: ein DDPM-Posterior-Schritt t -> t-1
// - ForwardNoise: q_sample, verrauscht ein sauberes Bild bis Zeitschritt t
//
// Zwischenergebnisse leben in einem eigenen Context, der auf jedem
// Rueckweg geschlossen wird. Nur das Ergebnis liegt im Ziel-Context.

package diffusion

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ollama/ddpm/ml"
)

// ErrModelInference wraps failures of the noise-prediction model.
var ErrModelInference = errors.New("model inference failed")

// Predictor predicts the noise contained in image at the given timestep.
// The timestep tensor holds a single int32. The returned tensor must have
// the shape of image and be allocated in ctx.
type Predictor interface {
	Predict(ctx ml.Context, timestep, image ml.Tensor) (ml.Tensor, error)
}

// ReverseStep applies one reverse diffusion step at timestep t:
//
//	x' = (x - beta_t / sqrt(1 - abar_t) * eps(x, t)) / sqrt(alpha_t) + stddev_t * z
//
// with z ~ N(0, I). Noise is added at every t including 0, where stddev is
// the floored near-zero value. The returned tensor is owned by out; every
// other tensor allocated here is released before returning.
func ReverseStep(b ml.Backend, out ml.Context, s *NoiseSchedule, m Predictor, image ml.Tensor, t int, rng *rand.Rand) (ml.Tensor, error) {
	if t < 0 || t >= s.Timesteps() {
		return nil, fmt.Errorf("%w: timestep %d outside [0, %d)", ErrInvalidArgument, t, s.Timesteps())
	}

	ctx := b.NewContext()
	defer ctx.Close()

	timestep := ctx.FromInts([]int32{int32(t)}, 1)

	noise, err := m.Predict(ctx, timestep, image)
	if err != nil {
		return nil, fmt.Errorf("%w: timestep %d: %w", ErrModelInference, t, err)
	}

	if !slices.Equal(noise.Shape(), image.Shape()) {
		return nil, fmt.Errorf("%w: predicted noise has shape %v, image has %v", ErrModelInference, noise.Shape(), image.Shape())
	}

	coef := s.beta[t] / s.sqrtOneMinusAlphaCumprod[t]
	sqrtAlpha := math.Sqrt(s.alpha[t])

	mean := image.Sub(ctx, noise.Scale(ctx, coef)).Scale(ctx, 1/sqrtAlpha)
	z := ctx.RandomNormal(rng, image.Shape()...)

	return mean.Add(out, z.Scale(ctx, s.stddev[t])), nil
}

// ForwardNoise samples x_t ~ q(x_t | x_0):
//
//	x_t = sqrt(abar_t) * x0 + sqrt(1 - abar_t) * noise
//
// If noise is nil a fresh standard-normal tensor is drawn from rng.
func ForwardNoise(b ml.Backend, out ml.Context, s *NoiseSchedule, x0, noise ml.Tensor, t int, rng *rand.Rand) (ml.Tensor, error) {
	if t < 0 || t >= s.Timesteps() {
		return nil, fmt.Errorf("%w: timestep %d outside [0, %d)", ErrInvalidArgument, t, s.Timesteps())
	}

	ctx := b.NewContext()
	defer ctx.Close()

	if noise == nil {
		noise = ctx.RandomNormal(rng, x0.Shape()...)
	} else if !slices.Equal(noise.Shape(), x0.Shape()) {
		return nil, fmt.Errorf("%w: noise shape %v does not match image shape %v", ErrInvalidArgument, noise.Shape(), x0.Shape())
	}

	signal := x0.Scale(ctx, s.sqrtAlphaCumprod[t])
	return signal.Add(out, noise.Scale(ctx, s.sqrtOneMinusAlphaCumprod[t])), nil
}
