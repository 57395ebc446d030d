// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Uint64/Float/Duration: Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Zahlen-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// Float gibt eine Funktion zurueck, die einen float64 mit Default-Wert liest
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

// Duration liest eine Dauer ("90s", "5m") oder ganze Sekunden.
// Negative Werte ergeben 0.
func Duration(key string, defaultValue time.Duration) func() time.Duration {
	return func() time.Duration {
		d := defaultValue
		if s := Var(key); s != "" {
			if v, err := time.ParseDuration(s); err == nil {
				d = v
			} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				d = time.Duration(n) * time.Second
			} else {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			}
		}
		return max(d, 0)
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DDPM_DEBUG":        {"DDPM_DEBUG", LogLevel(), "Show additional debug information (e.g. DDPM_DEBUG=1, 2 for trace)"},
		"DDPM_HOST":         {"DDPM_HOST", Host(), "IP Address for the ddpm server (default 127.0.0.1:11500)"},
		"DDPM_ORIGINS":      {"DDPM_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"DDPM_BETA_START":   {"DDPM_BETA_START", BetaStart(), "First beta of the noise schedule (default 0.0001)"},
		"DDPM_BETA_END":     {"DDPM_BETA_END", BetaEnd(), "Last beta of the noise schedule (default 0.02)"},
		"DDPM_TIMESTEPS":    {"DDPM_TIMESTEPS", Timesteps(), "Number of diffusion timesteps (default 200)"},
		"DDPM_SCHEDULE":     {"DDPM_SCHEDULE", Schedule(), "Beta schedule: linear, quadratic, sigmoid or cosine (default linear)"},
		"DDPM_IMAGE_SIZE":   {"DDPM_IMAGE_SIZE", ImageSize(), "Height and width of generated images (default 64)"},
		"DDPM_CHANNELS":     {"DDPM_CHANNELS", Channels(), "Color channels of generated images (default 3)"},
		"DDPM_MODEL":        {"DDPM_MODEL", Model(), "Noise prediction model (default gaussian)"},
		"DDPM_MODEL_PATH":   {"DDPM_MODEL_PATH", ModelPath(), "Path to model weights for file backed models"},
		"DDPM_MODEL_PARAMS": {"DDPM_MODEL_PARAMS", ModelParams(), "Model parameters as key=value pairs (e.g. mean=0.5,std=0.25)"},
		"DDPM_GPU":          {"DDPM_GPU", UseGPU(), "Use the CUDA execution provider for onnx models"},
		"DDPM_NUM_THREADS":  {"DDPM_NUM_THREADS", NumThreads(), "Threads for the model runtime (default auto)"},
		"DDPM_BACKEND":      {"DDPM_BACKEND", Backend(), "Tensor engine (default cpu)"},
		"DDPM_SEED":         {"DDPM_SEED", Seed(), "Seed for sampling noise (default time based)"},
		"DDPM_MAX_SESSIONS": {"DDPM_MAX_SESSIONS", MaxSessions(), "Maximum number of stored sessions, 0 for unbounded (default 64)"},
		"DDPM_SESSION_TTL":  {"DDPM_SESSION_TTL", SessionTTL(), "Idle time after which sessions are dropped (default never)"},
		"DDPM_HISTORY":      {"DDPM_HISTORY", History(), "SQLite file recording completed samples"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
