package envconfig

import (
	"log/slog"
	"testing"
	"time"
)

func TestHost(t *testing.T) {
	cases := map[string]string{
		"":                       "http://127.0.0.1:11500",
		"1.2.3.4":                "http://1.2.3.4:11500",
		":1234":                  "http://:1234",
		"example.com:8080":       "http://example.com:8080",
		"https://example.com":    "https://example.com:443",
		"http://[::1]:9000/ddpm": "http://[::1]:9000/ddpm",
		"127.0.0.1:99999":        "http://127.0.0.1:11500",
	}

	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			t.Setenv("DDPM_HOST", in)
			if got := Host().String(); got != want {
				t.Errorf("Host() = %s, erwartet %s", got, want)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for in, want := range cases {
		t.Setenv("DDPM_DEBUG", in)
		if got := LogLevel(); got != want {
			t.Errorf("LogLevel(%q) = %v, erwartet %v", in, got, want)
		}
	}
}

func TestScheduleDefaults(t *testing.T) {
	for _, k := range []string{"DDPM_BETA_START", "DDPM_BETA_END", "DDPM_TIMESTEPS", "DDPM_MODEL", "DDPM_BACKEND"} {
		t.Setenv(k, "")
	}

	if BetaStart() != 0.0001 || BetaEnd() != 0.02 || Timesteps() != 200 {
		t.Errorf("Plan-Defaults = %v %v %v", BetaStart(), BetaEnd(), Timesteps())
	}
	if Model() != "gaussian" || Backend() != "cpu" {
		t.Errorf("Modell-Defaults = %s %s", Model(), Backend())
	}

	t.Setenv("DDPM_BETA_END", "0.05")
	t.Setenv("DDPM_TIMESTEPS", "keine zahl")
	if BetaEnd() != 0.05 {
		t.Errorf("BetaEnd() = %v, erwartet 0.05", BetaEnd())
	}
	if Timesteps() != 200 {
		t.Errorf("Timesteps() = %v, erwartet Default 200", Timesteps())
	}
}

func TestSessionTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"90s":  90 * time.Second,
		"120":  2 * time.Minute,
		"-5m":  0,
		"bald": 0,
	}

	for in, want := range cases {
		t.Setenv("DDPM_SESSION_TTL", in)
		if got := SessionTTL(); got != want {
			t.Errorf("SessionTTL(%q) = %v, erwartet %v", in, got, want)
		}
	}
}

func TestVarTrimsQuotes(t *testing.T) {
	t.Setenv("DDPM_MODEL", ` "onnx" `)
	if got := Model(); got != "onnx" {
		t.Errorf("Model() = %q, erwartet onnx", got)
	}
}

func TestAsMapCoversValues(t *testing.T) {
	m := AsMap()
	v := Values()
	if len(m) != len(v) {
		t.Fatalf("AsMap %d Eintraege, Values %d", len(m), len(v))
	}
	for k, e := range m {
		if e.Name != k || e.Description == "" {
			t.Errorf("Eintrag %s unvollstaendig: %+v", k, e)
		}
	}
}

func TestModelParams(t *testing.T) {
	t.Setenv("DDPM_MODEL_PARAMS", "mean=0.5, std = 0.25,broken,=x,layout=nchw")
	got := ModelParams()
	want := map[string]string{"mean": "0.5", "std": "0.25", "layout": "nchw"}
	if len(got) != len(want) {
		t.Fatalf("ModelParams() = %v, erwartet %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ModelParams()[%s] = %q, erwartet %q", k, got[k], v)
		}
	}
}
