// Package migrate implements the migrate subcommand: one sequential
// migration pass over the configured number of groups.
package migrate

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/awsl-project/awsl-pic-pipeline/internal/conf"
	"github.com/awsl-project/awsl-pic-pipeline/internal/datastore"
	"github.com/awsl-project/awsl-pic-pipeline/internal/migration"
	"github.com/awsl-project/awsl-pic-pipeline/internal/selector"
	"github.com/awsl-project/awsl-pic-pipeline/internal/storage"
)

// Command creates the migrate command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run one migration pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunMigration(settings)
		},
	}

	cmd.Flags().IntVar(&settings.Migration.GroupLimit, "limit",
		settings.Migration.GroupLimit, "Max number of posts to migrate in this pass")
	cmd.Flags().BoolVar(&settings.Migration.EnableDelete, "enable-delete",
		settings.Migration.EnableDelete, "Allow soft-deleting pics that failed to upload")

	return cmd
}

// RunMigration wires the datastore, selector, storage client and migrator
// together and executes one run.
func RunMigration(settings *conf.Settings) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close datastore", "error", err)
		}
	}()

	client, err := storage.NewClient(storage.Config{
		BaseURL:  settings.Storage.BaseURL,
		APIToken: settings.Storage.APIToken,
		ChatID:   settings.Storage.ChatID,
	})
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	migrator := migration.New(store, selector.New(store), client, settings.Migration)
	summary, err := migrator.Run()
	if err != nil {
		return err
	}

	slog.Info("Migration run finished",
		"success", summary.Success, "fail", summary.Fail, "total", summary.Total)
	return nil
}
