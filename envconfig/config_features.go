// config_features.go - Plan-, Modell- und Sitzungsparameter
//
// Dieses Modul enthaelt:
// - Rauschplan (DDPM_BETA_START, DDPM_BETA_END, DDPM_TIMESTEPS, DDPM_SCHEDULE)
// - Bildform (DDPM_IMAGE_SIZE, DDPM_CHANNELS)
// - Modell und Backend (DDPM_MODEL, DDPM_MODEL_PATH, DDPM_BACKEND)
// - Sitzungen und Historie (DDPM_MAX_SESSIONS, DDPM_HISTORY)
package envconfig

import "strings"

// =============================================================================
// Rauschplan
// =============================================================================

var (
	// BetaStart ist das erste Beta des Plans
	BetaStart = Float("DDPM_BETA_START", 0.0001)

	// BetaEnd ist das letzte Beta des Plans
	BetaEnd = Float("DDPM_BETA_END", 0.02)

	// Timesteps ist die Laenge T des Plans
	Timesteps = Uint("DDPM_TIMESTEPS", 200)

	// Schedule waehlt linear, quadratic, sigmoid oder cosine
	Schedule = String("DDPM_SCHEDULE")
)

// =============================================================================
// Bildform
// =============================================================================

var (
	// ImageSize ist Hoehe und Breite des erzeugten Bildes
	ImageSize = Uint("DDPM_IMAGE_SIZE", 64)

	// Channels ist die Anzahl der Farbkanaele
	Channels = Uint("DDPM_CHANNELS", 3)
)

// =============================================================================
// Modell und Backend
// =============================================================================

var (
	// ModelPath zeigt auf Gewichte fuer dateibasierte Modelle (.onnx)
	ModelPath = String("DDPM_MODEL_PATH")

	// UseGPU aktiviert den CUDA Execution Provider fuer onnx
	UseGPU = Bool("DDPM_GPU")

	// NumThreads begrenzt Threads der Modell-Runtime (0 = auto)
	NumThreads = Uint("DDPM_NUM_THREADS", 0)
)

// ModelParams gibt modellspezifische Parameter aus DDPM_MODEL_PARAMS zurueck
// Format: key=value,key=value (z.B. "mean=0.5,std=0.25")
func ModelParams() map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(Var("DDPM_MODEL_PARAMS"), ",") {
		k, v, ok := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); !ok || k == "" {
			continue
		}
		params[k] = strings.TrimSpace(v)
	}
	return params
}

// Model gibt den Modellnamen zurueck (Default: gaussian)
func Model() string {
	if s := Var("DDPM_MODEL"); s != "" {
		return s
	}
	return "gaussian"
}

// Backend gibt den Tensor-Engine-Namen zurueck (Default: cpu)
func Backend() string {
	if s := Var("DDPM_BACKEND"); s != "" {
		return s
	}
	return "cpu"
}

// =============================================================================
// Sitzungen und Historie
// =============================================================================

var (
	// MaxSessions begrenzt die Sitzungstabelle (0 = unbegrenzt)
	MaxSessions = Uint("DDPM_MAX_SESSIONS", 64)

	// History ist der SQLite-Pfad fuer abgeschlossene Laeufe (leer = aus)
	History = String("DDPM_HISTORY")
)
