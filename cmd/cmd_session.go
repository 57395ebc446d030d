// cmd_session.go - Fortsetzbare Sitzungen ueber den Server
// Hauptfunktionen: StartHandler, NextHandler, CancelHandler, SessionsHandler
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/ddpm/api"
)

// printStep - Gibt Schluessel und Schritt aus und speichert optional das Bild
func printStep(cmd *cobra.Command, resp *api.StepResponse) error {
	fmt.Fprintf(cmd.OutOrStdout(), "key %s step %d (%.0f%%)\n", resp.Key, resp.Step, resp.Percent*100)
	if resp.Done() {
		fmt.Fprintln(cmd.OutOrStdout(), "done")
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		return writePNG(output, resp.Image)
	}
	return nil
}

// StartHandler - Beginnt eine neue Sitzung
func StartHandler(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Start(cmd.Context())
	if err != nil {
		return err
	}

	return printStep(cmd, resp)
}

// NextHandler - Fuehrt einen oder mehrere Schritte einer Sitzung aus
func NextHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	steps, _ := cmd.Flags().GetInt("steps")
	all, _ := cmd.Flags().GetBool("all")

	var resp *api.StepResponse
	for i := 0; all || i < max(steps, 1); i++ {
		resp, err = client.Next(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if resp.Done() {
			break
		}
	}

	return printStep(cmd, resp)
}

// CancelHandler - Verwirft eine Sitzung
func CancelHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, key := range args {
		if err := client.Cancel(cmd.Context(), key); err != nil {
			return fmt.Errorf("cancel %s: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled '%s'\n", key)
	}
	return nil
}

// SessionsHandler - Listet offene Sitzungen
func SessionsHandler(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Sessions(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, s := range resp.Sessions {
		data = append(data, []string{
			s.Key,
			strconv.Itoa(s.Step),
			fmt.Sprintf("%.0f%%", s.Percent*100),
			s.TouchedAt.Local().Format("15:04:05"),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"KEY", "STEP", "PROGRESS", "LAST USED"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// newTable - Tabelle im Stil von "ddpm sessions"
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// newStartCmd - Erstellt den start Command
func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a sampling session on the server",
		Args:  cobra.ExactArgs(0),
		RunE:  StartHandler,
	}
	cmd.Flags().StringP("output", "o", "", "Write the current image as PNG")
	return cmd
}

// newNextCmd - Erstellt den next Command
func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next KEY",
		Short: "Advance a sampling session",
		Args:  cobra.ExactArgs(1),
		RunE:  NextHandler,
	}
	cmd.Flags().StringP("output", "o", "", "Write the current image as PNG")
	cmd.Flags().IntP("steps", "n", 1, "Number of steps to take")
	cmd.Flags().Bool("all", false, "Step until the session is done")
	return cmd
}

// newCancelCmd - Erstellt den cancel Command
func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel KEY [KEY...]",
		Short: "Discard sampling sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  CancelHandler,
	}
}

// newSessionsCmd - Erstellt den sessions Command
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ps"},
		Short:   "List open sampling sessions",
		Args:    cobra.ExactArgs(0),
		RunE:    SessionsHandler,
	}
}
