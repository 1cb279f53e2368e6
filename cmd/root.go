package cmd

import (
	"github.com/spf13/cobra"

	"github.com/awsl-project/awsl-pic-pipeline/cmd/migrate"
	"github.com/awsl-project/awsl-pic-pipeline/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "awsl-pic-pipeline",
		Short: "awsl-pic-pipeline CLI",
		Long:  `Migrates catalog image references into the awsl-telegram-storage service.`,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", settings.Debug, "Enable debug output")

	// Add sub-commands to the root command.
	rootCmd.AddCommand(migrate.Command(settings))

	return rootCmd
}
