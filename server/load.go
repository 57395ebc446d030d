// load.go - Aufbau der Server-Kollaborateure aus der Umgebung
// Enthaelt: LoadConfig(), Config.Close()

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/envconfig"
	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
	"github.com/ollama/ddpm/store"

	_ "github.com/ollama/ddpm/ml/backend/cpu"
	_ "github.com/ollama/ddpm/model/gaussian"
	_ "github.com/ollama/ddpm/model/onnx"
)

// LoadSchedule baut den Rauschplan aus DDPM_SCHEDULE, DDPM_BETA_START,
// DDPM_BETA_END und DDPM_TIMESTEPS
func LoadSchedule() (*diffusion.NoiseSchedule, error) {
	kind, err := diffusion.ParseKind(envconfig.Schedule())
	if err != nil {
		return nil, err
	}

	return diffusion.BuildScheduleKind(kind, envconfig.BetaStart(), envconfig.BetaEnd(), int(envconfig.Timesteps()))
}

// NewRand liefert einen Generator fuer seed; 0 bedeutet zeitbasiert
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SeededRand liefert einen Generator fuer einen explizit gewaehlten Seed.
// Anders als NewRand ist auch 0 ein gueltiger, reproduzierbarer Seed.
func SeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// LoadConfig erzeugt Backend, Plan, Modell und optional die Historie aus
// den DDPM_* Variablen. Der Aufrufer schliesst das Ergebnis mit Close.
func LoadConfig() (cfg Config, err error) {
	defer func() {
		if err != nil {
			cfg.Close()
		}
	}()

	cfg.Schedule, err = LoadSchedule()
	if err != nil {
		return cfg, err
	}

	cfg.Backend, err = ml.NewBackend(envconfig.Backend(), ml.BackendParams{})
	if err != nil {
		return cfg, err
	}

	size, channels := int(envconfig.ImageSize()), int(envconfig.Channels())
	cfg.ModelName = envconfig.Model()
	cfg.Model, err = model.New(cfg.ModelName, model.Options{
		Path:       envconfig.ModelPath(),
		Shape:      []int{1, size, size, channels},
		Schedule:   cfg.Schedule,
		NumThreads: int(envconfig.NumThreads()),
		UseGPU:     envconfig.UseGPU(),
		Params:     envconfig.ModelParams(),
	})
	if err != nil {
		return cfg, fmt.Errorf("load model %s: %w", cfg.ModelName, err)
	}

	if path := envconfig.History(); path != "" {
		cfg.History, err = store.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open history: %w", err)
		}
	}

	cfg.Rand = NewRand(envconfig.Seed())
	cfg.MaxSessions = int(envconfig.MaxSessions())
	cfg.SessionTTL = envconfig.SessionTTL()

	slog.Info("loaded sampler",
		"backend", cfg.Backend.Name(),
		"model", cfg.ModelName,
		"shape", cfg.Model.Shape(),
		"schedule", cfg.Schedule.Kind(),
		"timesteps", cfg.Schedule.Timesteps())
	return cfg, nil
}

// Close gibt Modell, Historie und Backend frei
func (c Config) Close() error {
	var errs []error
	if c.Model != nil {
		errs = append(errs, c.Model.Close())
	}
	if c.History != nil {
		errs = append(errs, c.History.Close())
	}
	if c.Backend != nil {
		c.Backend.Close()
	}
	return errors.Join(errs...)
}
