//go:build !cgo

// MODUL: onnx/stub
// ZWECK: Stub-Implementierung wenn CGO nicht verfuegbar ist
// HINWEISE: Registriert "onnx", liefert aber immer ErrCGORequired

package onnx

import (
	"fmt"

	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
)

// ErrCGORequired wird zurueckgegeben wenn CGO nicht verfuegbar ist
var ErrCGORequired = fmt.Errorf("%w: onnx requires cgo", ml.ErrBackendUnavailable)

func init() {
	model.Register("onnx", New)
}

// New Stub - gibt immer Fehler zurueck
func New(model.Options) (model.Model, error) {
	return nil, ErrCGORequired
}
