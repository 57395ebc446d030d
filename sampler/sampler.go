// Package sampler - Ausfuehrung des Rueckwaerts-Prozesses
//
// Zwei Treiber auf denselben Bausteinen (Plan + ReverseStep):
// - Run: laeuft von T-1 bis 0 durch und meldet jeden Schritt
// - Driver: fortsetzbare Sitzungen, ein Schritt pro Next-Aufruf
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
)

// Config bundles the collaborators both drivers need.
type Config struct {
	Backend  ml.Backend
	Schedule *diffusion.NoiseSchedule
	Model    model.Model

	// Rand is the noise source. Nil uses the global generator.
	Rand *rand.Rand
}

func (c Config) validate() error {
	if c.Backend == nil || c.Schedule == nil || c.Model == nil {
		return errors.New("sampler: backend, schedule and model are required")
	}
	return model.ValidateShape(c.Model.Shape())
}

// Progress is emitted after every step of Run.
type Progress struct {
	Step    int
	Percent float64
	Image   [][][][]float32
}

// ProgressFunc receives each step. Returning an error stops the run.
type ProgressFunc func(Progress) error

// Run executes every timestep from T-1 down to 0. After each step the
// materialized image is passed to fn and the previous image is released.
// The final image is released before Run returns. ctx is checked between
// steps; a cancelled run releases its image and returns ctx.Err().
func Run(ctx context.Context, cfg Config, fn ProgressFunc) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	b, s := cfg.Backend, cfg.Schedule

	current := b.NewContext()
	defer func() { current.Close() }()

	image := current.RandomNormal(cfg.Rand, cfg.Model.Shape()...)

	for step := s.Timesteps() - 1; step >= 0; step-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := b.NewContext()
		out, err := diffusion.ReverseStep(b, next, s, cfg.Model, image, step, cfg.Rand)
		if err != nil {
			next.Close()
			return err
		}

		nested, err := ml.Nested(out)
		if err != nil {
			next.Close()
			return fmt.Errorf("sampler: %w", err)
		}

		current.Close()
		current, image = next, out

		if err := fn(Progress{Step: step, Percent: s.Percent(step), Image: nested}); err != nil {
			return err
		}

		slog.Debug("sampler step", "step", step, "live", b.Live())
	}

	return nil
}
