package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/storage"
)

func migrateCmd(a *app) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Bring the database schema up to date",
		Long:        "Apply pending schema migrations. Every other command does this on its own; use --status to inspect the schema version.",
		Annotations: map[string]string{skipLedger: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx, false); err != nil {
				return err
			}

			current, err := a.store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if status {
				printf(cmd, "Database:        %s\n", a.settings.Database.Path)
				printf(cmd, "Schema version:  %d\n", current)
				printf(cmd, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
				if current < storage.ExpectedSchemaVersion {
					printLine(cmd, cli.FormatWarning("Migrations pending. Run 'tally migrate'."))
				}
				return nil
			}

			if current >= storage.ExpectedSchemaVersion {
				printLine(cmd, cli.FormatInfo(fmt.Sprintf("Schema is up to date (version %d)", current)))
				return nil
			}
			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			printLine(cmd, cli.FormatSuccess(fmt.Sprintf("Migrated schema from version %d to %d", current, storage.ExpectedSchemaVersion)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show the schema version without migrating")
	return cmd
}
