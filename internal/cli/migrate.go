package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-core/internal/persistence"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQL migrations to the configured Postgres database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}

		dir := migrationsDir
		if dir == "" {
			dir = cfg.Postgres.MigrationsDir
		}

		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()

		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), dir, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
}
