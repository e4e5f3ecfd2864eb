package main

import (
	"fmt"

	pgStorage "people-registry/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or revert the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(pgStorage.Up), string(pgStorage.Down)},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	dir := pgStorage.Direction(args[0])
	if err := pgStorage.Migrate(cfg.Database.MigrationURL(), dir, log); err != nil {
		log.Error().Err(err).Str("direction", string(dir)).Msg("Migration failed")
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}
