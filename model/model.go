// Package model - Rauschvorhersage-Modelle und Registrierung
//
// Dieses Paket definiert das Model-Interface, das der Sampler aufruft,
// und eine Registry, ueber die Implementierungen per Name erzeugt werden.
//
// Hauptkomponenten:
// - Model: Predict(ctx, timestep, image) plus Eingabeform
// - Options: Pfad, Bildform, Plan und freie Parameter
// - Register/New/Names: Registry der Modell-Konstruktoren

package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/ollama/ddpm/diffusion"
)

// Fehler-Definitionen
var (
	ErrUnknownModel = errors.New("unknown model")
	ErrInvalidShape = errors.New("invalid image shape")
)

// Model definiert das Interface fuer Rauschvorhersage-Modelle
type Model interface {
	diffusion.Predictor

	// Shape is the image shape the model accepts, [1, H, W, C].
	Shape() []int

	Close() error
}

// Options configures a model constructor.
type Options struct {
	// Path points at model weights for file-backed models.
	Path string

	// Shape is the image shape [1, H, W, C].
	Shape []int

	Schedule *diffusion.NoiseSchedule

	NumThreads int
	UseGPU     bool

	// Params holds model specific settings, e.g. "mean" for gaussian or
	// "input.image" for onnx.
	Params map[string]string
}

// Float returns the float parameter key or def if it is unset.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o.Params[key]
	if !ok || v == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return f, nil
}

// String returns the parameter key or def if it is unset.
func (o Options) String(key, def string) string {
	if v, ok := o.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// ValidateShape checks that shape is [1, H, W, C] with positive sizes.
func ValidateShape(shape []int) error {
	if len(shape) != 4 || shape[0] != 1 {
		return fmt.Errorf("%w: expected [1, H, W, C], got %v", ErrInvalidShape, shape)
	}
	for _, d := range shape[1:] {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrInvalidShape, shape)
		}
	}
	return nil
}

// Factory erzeugt ein Modell aus Options
type Factory func(Options) (Model, error)

var (
	modelsMu sync.RWMutex
	models   = make(map[string]Factory)
)

// Register registriert einen Modell-Konstruktor
func Register(name string, f Factory) {
	modelsMu.Lock()
	defer modelsMu.Unlock()

	if _, ok := models[name]; ok {
		panic("model: model already registered: " + name)
	}

	models[name] = f
}

// New erzeugt das Modell name. Shape wird vorab geprueft.
func New(name string, opts Options) (Model, error) {
	modelsMu.RLock()
	f, ok := models[name]
	modelsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	if err := ValidateShape(opts.Shape); err != nil {
		return nil, err
	}

	return f(opts)
}

// Names lists the registered models in sorted order.
func Names() []string {
	modelsMu.RLock()
	defer modelsMu.RUnlock()

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
