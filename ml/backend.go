// backend.go - Backend-Interface und Registrierung fuer Tensor-Engines
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrBackendUnavailable is returned when a tensor engine or a model runtime
// cannot be initialized.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Backend represents a tensor execution engine (e.g. the pure Go CPU engine).
type Backend interface {
	Name() string

	// NewContext returns an empty context. Tensors allocated through it stay
	// alive until the context is closed.
	NewContext() Context

	// Live returns the number of tensors that have been allocated and not
	// yet released by their owning context.
	Live() int

	// Close frees all memory associated with this backend
	Close()
}

// BackendParams controls how the backend executes
type BackendParams struct {
	// NumThreads sets the number of threads to use if running on the CPU
	NumThreads int
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]func(BackendParams) (Backend, error))
)

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := backends[name]; ok {
		panic("backend: backend already registered: " + name)
	}

	backends[name] = f
}

// NewBackend creates a new backend instance by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unsupported backend %q", ErrBackendUnavailable, name)
	}

	b, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, name, err)
	}

	return b, nil
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
