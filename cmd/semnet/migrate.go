package main

import (
	"fmt"

	"github.com/nidhogg/semnet/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply history database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding *.up.sql files")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Postgres.DSN == "" {
		return fmt.Errorf("database.postgres.dsn is not set")
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := cmd.Context()
	pg, err := store.New(ctx, cfg.Database.Postgres.DSN, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	applied, err := pg.Migrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	logger.Info("migrations applied",
		zap.String("dir", migrationsDir),
		zap.Strings("files", applied))
	return nil
}
