// backend.go - Reines Go CPU-Backend fuer die Tensor-Engine
// Enthaelt: Backend struct, New(), Registrierung als "cpu"
//
// Die Elementoperationen laufen ueber gonum/floats auf float64-Puffern.
// Jeder Tensor gehoert genau einem Context; Live() zaehlt alle Tensoren,
// deren Context noch nicht geschlossen wurde.

package cpu

import (
	"log/slog"
	"sync/atomic"

	"github.com/ollama/ddpm/ml"
)

func init() {
	ml.RegisterBackend("cpu", New)
}

// Backend is the pure Go tensor engine.
type Backend struct {
	live   atomic.Int64
	closed atomic.Bool
}

// New creates a CPU backend. NumThreads is accepted for interface parity and
// ignored; all kernels run on the calling goroutine.
func New(params ml.BackendParams) (ml.Backend, error) {
	slog.Debug("cpu backend", "num_threads", params.NumThreads)
	return &Backend{}, nil
}

func (b *Backend) Name() string { return "cpu" }

func (b *Backend) NewContext() ml.Context {
	if b.closed.Load() {
		panic("cpu: backend is closed")
	}

	return &Context{b: b}
}

func (b *Backend) Live() int {
	return int(b.live.Load())
}

func (b *Backend) Close() {
	if b.closed.Swap(true) {
		return
	}

	if n := b.live.Load(); n > 0 {
		slog.Warn("cpu backend closed with live tensors", "live", n)
	}
}
