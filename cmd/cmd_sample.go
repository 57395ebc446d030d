// cmd_sample.go - Kompletter Lauf lokal oder ueber den Server
// Hauptfunktionen: SampleHandler, sampleLocal, sampleRemote
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ollama/ddpm/api"
	"github.com/ollama/ddpm/imageproc"
	"github.com/ollama/ddpm/sampler"
	"github.com/ollama/ddpm/server"
)

type sampleOptions struct {
	output string
	frames string
	seed   *uint64
	remote bool
}

// SampleHandler - Fuehrt alle Zeitschritte aus und schreibt das Bild als PNG
func SampleHandler(cmd *cobra.Command, _ []string) error {
	var opts sampleOptions
	opts.output, _ = cmd.Flags().GetString("output")
	opts.frames, _ = cmd.Flags().GetString("frames")
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		opts.seed = &seed
	}
	opts.remote, _ = cmd.Flags().GetBool("remote")

	if opts.frames != "" {
		if err := os.MkdirAll(opts.frames, 0o755); err != nil {
			return err
		}
	}

	var final [][][][]float32
	p := newProgressLine(os.Stderr)
	onStep := func(step int, percent float64, image [][][][]float32) error {
		p.Update(step, percent)
		final = image

		if opts.frames != "" {
			return writePNG(filepath.Join(opts.frames, fmt.Sprintf("step_%05d.png", step)), image)
		}
		return nil
	}

	var err error
	if opts.remote {
		err = sampleRemote(cmd, opts, onStep)
	} else {
		err = sampleLocal(cmd, opts, onStep)
	}
	p.Done()
	if err != nil {
		return err
	}

	if err := writePNG(opts.output, final); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.output)
	return nil
}

func sampleLocal(cmd *cobra.Command, opts sampleOptions, fn func(int, float64, [][][][]float32) error) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	defer cfg.Close()

	rng := cfg.Rand
	if opts.seed != nil {
		rng = server.SeededRand(*opts.seed)
	}

	return sampler.Run(cmd.Context(), sampler.Config{
		Backend:  cfg.Backend,
		Schedule: cfg.Schedule,
		Model:    cfg.Model,
		Rand:     rng,
	}, func(p sampler.Progress) error {
		return fn(p.Step, p.Percent, p.Image)
	})
}

func sampleRemote(cmd *cobra.Command, opts sampleOptions, fn func(int, float64, [][][][]float32) error) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	return client.Sample(cmd.Context(), &api.SampleRequest{Seed: opts.seed}, func(p api.ProgressResponse) error {
		return fn(p.Step, p.Percent, p.Image)
	})
}

// writePNG - Schreibt ein [1][H][W][C] Bild als PNG-Datei
func writePNG(path string, image [][][][]float32) error {
	if image == nil {
		return fmt.Errorf("no image to write to %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := imageproc.WritePNG(f, image); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// newSampleCmd - Erstellt den sample Command
func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run the full reverse process and write a PNG",
		Args:  cobra.ExactArgs(0),
		RunE:  SampleHandler,
	}

	cmd.Flags().StringP("output", "o", "sample.png", "Output PNG path")
	cmd.Flags().String("frames", "", "Directory for one PNG per timestep")
	cmd.Flags().Uint64("seed", 0, "Noise seed (unset uses DDPM_SEED or the clock)")
	cmd.Flags().Bool("remote", false, "Sample on the server at DDPM_HOST")
	return cmd
}
