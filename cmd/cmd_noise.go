// cmd_noise.go - Vorwaerts-Verrauschung eines Eingabebildes
// Hauptfunktionen: NoiseHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/envconfig"
	"github.com/ollama/ddpm/imageproc"
	"github.com/ollama/ddpm/ml"
	"github.com/ollama/ddpm/server"
)

// NoiseHandler - Verrauscht ein Bild bis Zeitschritt t und speichert es
func NoiseHandler(cmd *cobra.Command, args []string) error {
	sched, err := scheduleFromFlags(cmd)
	if err != nil {
		return err
	}

	size := int(envconfig.ImageSize())
	if cmd.Flags().Changed("size") {
		size, _ = cmd.Flags().GetInt("size")
	}
	channels := int(envconfig.Channels())

	step := sched.Timesteps() - 1
	if cmd.Flags().Changed("step") {
		step, _ = cmd.Flags().GetInt("step")
	}

	img, err := imageproc.Load(args[0])
	if err != nil {
		return err
	}

	data, err := imageproc.FromImage(img, size, channels)
	if err != nil {
		return err
	}

	b, err := ml.NewBackend(envconfig.Backend(), ml.BackendParams{})
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := b.NewContext()
	defer ctx.Close()

	seed, _ := cmd.Flags().GetUint64("seed")
	x0 := ctx.FromFloats(data, 1, size, size, channels)
	xt, err := diffusion.ForwardNoise(b, ctx, sched, x0, nil, step, server.NewRand(seed))
	if err != nil {
		return err
	}

	nested, err := ml.Nested(xt)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if err := writePNG(output, nested); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (t=%d, signal %.3f)\n", output, step, sched.SqrtAlphaCumprod(step))
	return nil
}

// newNoiseCmd - Erstellt den noise Command
func newNoiseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "noise IMAGE",
		Short: "Apply the forward process to an image",
		Args:  cobra.ExactArgs(1),
		RunE:  NoiseHandler,
	}

	cmd.Flags().StringP("output", "o", "noised.png", "Output PNG path")
	cmd.Flags().Int("step", 0, "Timestep t (default T-1)")
	cmd.Flags().Int("size", 64, "Output height and width")
	cmd.Flags().Uint64("seed", 0, "Noise seed (0 uses the clock)")
	cmd.Flags().String("kind", "linear", "Schedule kind: linear, quadratic, sigmoid or cosine")
	cmd.Flags().Float64("beta-start", 0.0001, "First beta")
	cmd.Flags().Float64("beta-end", 0.02, "Last beta")
	cmd.Flags().Int("timesteps", 200, "Number of timesteps")
	return cmd
}
