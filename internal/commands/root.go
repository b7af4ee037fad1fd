package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:     "releve",
		Short:   "Import bank statements into a personal ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "work directory")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default <dir>/"+configFileName+")")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with RELEVE_* overrides")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newInitCommand(g))
	rootCmd.AddCommand(newImportCommand(g))
	rootCmd.AddCommand(newIndexCommand(g))
	rootCmd.AddCommand(newMappingsCommand(g))
	rootCmd.AddCommand(newMigrateCommand(g))
	rootCmd.AddCommand(newJobCommand(g))

	return rootCmd
}
