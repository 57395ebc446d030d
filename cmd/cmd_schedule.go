// cmd_schedule.go - Anzeige und Export des Rauschplans
// Hauptfunktionen: ScheduleHandler, loadSchedule, writeScheduleCSV, plotSchedule
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ollama/ddpm/api"
	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/envconfig"
	"github.com/ollama/ddpm/server"
)

// scheduleFromFlags - Baut den Plan aus Flags, Defaults kommen aus DDPM_*
func scheduleFromFlags(cmd *cobra.Command) (*diffusion.NoiseSchedule, error) {
	kindName := envconfig.Schedule()
	if cmd.Flags().Changed("kind") {
		kindName, _ = cmd.Flags().GetString("kind")
	}

	kind, err := diffusion.ParseKind(kindName)
	if err != nil {
		return nil, err
	}

	betaStart, betaEnd := envconfig.BetaStart(), envconfig.BetaEnd()
	timesteps := int(envconfig.Timesteps())
	if cmd.Flags().Changed("beta-start") {
		betaStart, _ = cmd.Flags().GetFloat64("beta-start")
	}
	if cmd.Flags().Changed("beta-end") {
		betaEnd, _ = cmd.Flags().GetFloat64("beta-end")
	}
	if cmd.Flags().Changed("timesteps") {
		timesteps, _ = cmd.Flags().GetInt("timesteps")
	}

	return diffusion.BuildScheduleKind(kind, betaStart, betaEnd, timesteps)
}

// ScheduleHandler - Zeigt den Plan als Tabelle, CSV oder Diagramm
func ScheduleHandler(cmd *cobra.Command, _ []string) error {
	var resp api.ScheduleResponse
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		r, err := client.Schedule(cmd.Context())
		if err != nil {
			return err
		}
		resp = *r
	} else {
		s, err := scheduleFromFlags(cmd)
		if err != nil {
			return err
		}
		resp = server.ScheduleResponse(s)
	}

	if path, _ := cmd.Flags().GetString("plot"); path != "" {
		if err := plotSchedule(path, resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	}

	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		return writeScheduleCSV(cmd.OutOrStdout(), resp)
	}

	every, _ := cmd.Flags().GetInt("every")
	printSchedule(cmd.OutOrStdout(), resp, max(every, 1))
	return nil
}

func printSchedule(w io.Writer, resp api.ScheduleResponse, every int) {
	format := func(f float64) string { return strconv.FormatFloat(f, 'g', 6, 64) }

	var data [][]string
	rows := resp.Rows()
	for i, r := range rows {
		if i%every != 0 && i != len(rows)-1 {
			continue
		}

		data = append(data, []string{
			strconv.Itoa(r.T),
			format(r.Beta),
			format(r.AlphaCumprod),
			format(r.AlphaCumprodPrev),
			format(r.SqrtOneMinusAlphaCumprod),
			format(r.Stddev),
		})
	}

	fmt.Fprintf(w, "%s schedule, T=%d\n\n", resp.Kind, resp.Timesteps)
	table := newTable(w, []string{"T", "BETA", "ALPHA_CUMPROD", "ALPHA_CUMPROD_PREV", "SQRT_1-ALPHA_CUMPROD", "STDDEV"})
	table.AppendBulk(data)
	table.Render()
}

// writeScheduleCSV - Eine Zeile pro Zeitschritt, Spalten aus den csv-Tags
func writeScheduleCSV(w io.Writer, resp api.ScheduleResponse) error {
	rows := resp.Rows()
	return gocsv.Marshal(&rows, w)
}

// plotSchedule - Speichert alpha_cumprod, beta und stddev ueber t als Bild
func plotSchedule(path string, resp api.ScheduleResponse) error {
	series := func(values []float64) plotter.XYs {
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		return pts
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s schedule (T=%d)", resp.Kind, resp.Timesteps)
	p.X.Label.Text = "t"
	p.Y.Min = 0
	p.Y.Max = 1

	err := plotutil.AddLinePoints(p,
		"alpha_cumprod", series(resp.AlphaCumprod),
		"sqrt(1-alpha_cumprod)", series(resp.SqrtOneMinusAlphaCumprod),
		"beta", series(resp.Beta),
		"stddev", series(resp.Stddev),
	)
	if err != nil {
		return err
	}

	// the file extension selects the format (png, svg, pdf)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// newScheduleCmd - Erstellt den schedule Command
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the noise schedule",
		Args:  cobra.ExactArgs(0),
		RunE:  ScheduleHandler,
	}

	cmd.Flags().String("kind", "linear", "Schedule kind: linear, quadratic, sigmoid or cosine")
	cmd.Flags().Float64("beta-start", 0.0001, "First beta")
	cmd.Flags().Float64("beta-end", 0.02, "Last beta")
	cmd.Flags().Int("timesteps", 200, "Number of timesteps")
	cmd.Flags().Int("every", 1, "Print every n-th timestep")
	cmd.Flags().Bool("csv", false, "Write CSV instead of a table")
	cmd.Flags().String("plot", "", "Save a plot to this file (.png, .svg or .pdf)")
	cmd.Flags().Bool("remote", false, "Show the schedule of the server at DDPM_HOST")
	return cmd
}
