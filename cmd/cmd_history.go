// cmd_history.go - Abgeschlossene Laeufe des Servers
// Hauptfunktionen: HistoryHandler
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/ddpm/api"
)

// HistoryHandler - Listet gespeicherte Laeufe oder laedt ein Bild herunter
func HistoryHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		png, err := client.HistoryImage(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = args[0] + ".png"
		}
		if err := os.WriteFile(output, png, 0o644); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	resp, err := client.History(cmd.Context(), limit)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range resp.Records {
		data = append(data, []string{
			r.Key,
			r.Mode,
			r.Model,
			r.Schedule,
			strconv.Itoa(r.Timesteps),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"KEY", "MODE", "MODEL", "SCHEDULE", "T", "CREATED"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [KEY]",
		Short: "List completed samples or save one as PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE:  HistoryHandler,
	}

	cmd.Flags().Int("limit", 0, "Maximum number of records (default server side)")
	cmd.Flags().StringP("output", "o", "", "Output PNG path when KEY is given (default KEY.png)")
	return cmd
}
