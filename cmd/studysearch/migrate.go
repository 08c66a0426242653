package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/studysearch/internal/storage"
)

var migrateRollback bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
	Long: `Migrate brings the configured database up to the current schema version.
Storage is migrated automatically on open, so this is mostly useful with
--rollback, which reverts the newest migration.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "revert the newest migration")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if migrateRollback {
		if err := storage.Rollback(ctx, store); err != nil {
			return err
		}
		cmd.Println("Rolled back the newest migration")
		return nil
	}

	version, err := storage.Migrate(ctx, store)
	if err != nil {
		return err
	}
	cmd.Printf("Schema is at version %s\n", displayVersion(version))
	return nil
}

func displayVersion(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
