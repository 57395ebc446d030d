// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ollama/ddpm/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ddpm",
		Short:         "Denoising diffusion sampler",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	sampleCmd := newSampleCmd()
	startCmd := newStartCmd()
	nextCmd := newNextCmd()
	cancelCmd := newCancelCmd()
	sessionsCmd := newSessionsCmd()
	scheduleCmd := newScheduleCmd()
	noiseCmd := newNoiseCmd()
	historyCmd := newHistoryCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["DDPM_HOST"]}

	scheduleEnvs := []envconfig.EnvVar{
		envVars["DDPM_SCHEDULE"],
		envVars["DDPM_BETA_START"],
		envVars["DDPM_BETA_END"],
		envVars["DDPM_TIMESTEPS"],
	}

	modelEnvs := slices.Concat(scheduleEnvs, []envconfig.EnvVar{
		envVars["DDPM_DEBUG"],
		envVars["DDPM_BACKEND"],
		envVars["DDPM_MODEL"],
		envVars["DDPM_MODEL_PATH"],
		envVars["DDPM_MODEL_PARAMS"],
		envVars["DDPM_IMAGE_SIZE"],
		envVars["DDPM_CHANNELS"],
		envVars["DDPM_GPU"],
		envVars["DDPM_NUM_THREADS"],
		envVars["DDPM_SEED"],
	})

	for _, cmd := range []*cobra.Command{
		serveCmd,
		sampleCmd,
		startCmd,
		nextCmd,
		cancelCmd,
		sessionsCmd,
		scheduleCmd,
		noiseCmd,
		historyCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, slices.Concat(modelEnvs, []envconfig.EnvVar{
				envVars["DDPM_HOST"],
				envVars["DDPM_ORIGINS"],
				envVars["DDPM_MAX_SESSIONS"],
				envVars["DDPM_SESSION_TTL"],
				envVars["DDPM_HISTORY"],
			}))
		case sampleCmd:
			appendEnvDocs(cmd, slices.Concat(modelEnvs, []envconfig.EnvVar{envVars["DDPM_HOST"], envVars["DDPM_HISTORY"]}))
		case scheduleCmd, noiseCmd:
			appendEnvDocs(cmd, scheduleEnvs)
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		sampleCmd,
		startCmd,
		nextCmd,
		cancelCmd,
		sessionsCmd,
		scheduleCmd,
		noiseCmd,
		historyCmd,
	)

	return rootCmd
}
