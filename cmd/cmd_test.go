package cmd

import (
	"bytes"
	"context"
	"image/png"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/model"
	"github.com/ollama/ddpm/server"
	"github.com/ollama/ddpm/store"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

// startServer startet einen Server mit T=4 und setzt DDPM_HOST
func startServer(t *testing.T) {
	t.Helper()

	b, err := ml.NewBackend("cpu", ml.BackendParams{})
	require.NoError(t, err)

	sched, err := diffusion.BuildSchedule(0.1, 0.4, 4)
	require.NoError(t, err)

	m, err := model.New("gaussian", model.Options{Shape: []int{1, 4, 4, 3}, Schedule: sched})
	require.NoError(t, err)

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	cfg := server.Config{
		Backend:   b,
		Schedule:  sched,
		Model:     m,
		ModelName: "gaussian",
		Rand:      rand.New(rand.NewPCG(5, 6)),
		History:   history,
	}

	s, err := server.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s.GenerateRoutes())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
		cfg.Close()
	})

	t.Setenv("DDPM_HOST", ts.URL)
}

func TestScheduleCSV(t *testing.T) {
	out := execute(t, newScheduleCmd(), "--csv", "--timesteps", "4", "--beta-start", "0.1", "--beta-end", "0.4")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "t,beta,alpha,alpha_cumprod,alpha_cumprod_prev,sqrt_one_minus_alpha_cumprod,stddev", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,0.1,0.9,0.9,1,"), lines[1])
}

func TestScheduleTable(t *testing.T) {
	out := execute(t, newScheduleCmd(), "--kind", "cosine", "--timesteps", "10", "--every", "5")

	assert.Contains(t, out, "cosine schedule, T=10")
	assert.Contains(t, out, "ALPHA CUMPROD")

	// rows 0, 5 and the last row 9
	rows := regexp.MustCompile(`(?m)^\s*(0|5|9)\s{2,}`).FindAllString(out, -1)
	assert.Len(t, rows, 3)
}

func TestScheduleInvalid(t *testing.T) {
	cmd := newScheduleCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--kind", "exponential"})
	assert.ErrorIs(t, cmd.Execute(), diffusion.ErrInvalidArgument)

	cmd = newScheduleCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--beta-start", "0.5", "--beta-end", "0.1"})
	assert.ErrorIs(t, cmd.Execute(), diffusion.ErrInvalidArgument)
}

func TestSchedulePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.png")
	execute(t, newScheduleCmd(), "--timesteps", "50", "--plot", path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestProgressLineNoTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "progress")
	require.NoError(t, err)
	defer f.Close()

	p := newProgressLine(f)
	for i, step := range []int{3, 2, 1, 0} {
		p.Update(step, float64(i+1)/4)
	}
	p.Done()

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "step 3 (25%)\nstep 2 (50%)\nstep 1 (75%)\nstep 0 (100%)\n", string(data))
}

func TestNoiseCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.png")
	output := filepath.Join(dir, "noised.png")

	nested := [][][][]float32{{
		{{-1, -1, -1}, {1, 1, 1}},
		{{1, 1, 1}, {-1, -1, -1}},
	}}
	require.NoError(t, writePNG(input, nested))

	t.Setenv("DDPM_CHANNELS", "3")
	out := execute(t, newNoiseCmd(), input, "-o", output, "--size", "8", "--step", "0", "--timesteps", "4", "--beta-start", "0.1", "--beta-end", "0.4", "--seed", "9")
	assert.Contains(t, out, "t=0")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestSessionCommands(t *testing.T) {
	startServer(t)
	dir := t.TempDir()

	out := execute(t, newStartCmd())
	m := regexp.MustCompile(`key (\S+) step 3`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	key := m[1]

	out = execute(t, newSessionsCmd())
	assert.Contains(t, out, key)

	final := filepath.Join(dir, "final.png")
	out = execute(t, newNextCmd(), key, "--all", "-o", final)
	assert.Contains(t, out, "step 0")
	assert.Contains(t, out, "done")
	assert.FileExists(t, final)

	out = execute(t, newHistoryCmd())
	assert.Contains(t, out, key)
	assert.Contains(t, out, "session")

	saved := filepath.Join(dir, "saved.png")
	execute(t, newHistoryCmd(), key, "-o", saved)
	assert.FileExists(t, saved)
}

func TestCancelCommand(t *testing.T) {
	startServer(t)

	out := execute(t, newStartCmd())
	key := regexp.MustCompile(`key (\S+)`).FindStringSubmatch(out)[1]

	out = execute(t, newCancelCmd(), key)
	assert.Contains(t, out, "cancelled")

	cmd := newCancelCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{key})
	assert.Error(t, cmd.Execute())
}

func TestRemoteSample(t *testing.T) {
	startServer(t)

	output := filepath.Join(t.TempDir(), "sample.png")
	out := execute(t, newSampleCmd(), "--remote", "--seed", "11", "-o", output)
	assert.Contains(t, out, "wrote "+output)
	assert.FileExists(t, output)
}

func TestLocalSample(t *testing.T) {
	t.Setenv("DDPM_TIMESTEPS", "5")
	t.Setenv("DDPM_IMAGE_SIZE", "4")
	t.Setenv("DDPM_MODEL", "gaussian")
	t.Setenv("DDPM_HISTORY", "")

	dir := t.TempDir()
	output := filepath.Join(dir, "sample.png")
	frames := filepath.Join(dir, "frames")

	execute(t, newSampleCmd(), "--seed", "3", "-o", output, "--frames", frames)
	assert.FileExists(t, output)

	entries, err := os.ReadDir(frames)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestLocalSampleZeroSeed(t *testing.T) {
	t.Setenv("DDPM_TIMESTEPS", "5")
	t.Setenv("DDPM_IMAGE_SIZE", "4")
	t.Setenv("DDPM_MODEL", "gaussian")
	t.Setenv("DDPM_HISTORY", "")

	dir := t.TempDir()
	first := filepath.Join(dir, "first.png")
	second := filepath.Join(dir, "second.png")
	execute(t, newSampleCmd(), "--seed", "0", "-o", first)
	execute(t, newSampleCmd(), "--seed", "0", "-o", second)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "--seed 0 ist ein fester Seed")
}
