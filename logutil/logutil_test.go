package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	prev := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	Trace("tensor released", "live", 3)

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("Ausgabe ohne level=TRACE: %q", out)
	}
	if !strings.Contains(out, "source=logutil.go:") {
		t.Errorf("Quelle nicht gekuerzt: %q", out)
	}
	if !strings.Contains(out, "live=3") {
		t.Errorf("Attribut fehlt: %q", out)
	}
}

func TestTraceDisabledAtInfo(t *testing.T) {
	var buf bytes.Buffer

	prev := slog.Default()
	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Trace("hidden")
	slog.Debug("hidden too")
	slog.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Trace/Debug bei INFO ausgegeben: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Info fehlt: %q", out)
	}
}
