package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-core/internal/config"
	"github.com/spec-kit/support-core/internal/persistence"
	"github.com/spec-kit/support-core/internal/repository"
)

var seedActorsCmd = &cobra.Command{
	Use:   "seed-actors <file>",
	Short: "Upsert actors from a YAML seed file into the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		actors, err := config.LoadActors(args[0])
		if err != nil {
			return err
		}
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}

		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()

		store := repository.NewPostgresStore(pg.PoolHandle())
		err = store.WithinTx(ctx, func(tx repository.Store) error {
			for i := range actors {
				if err := tx.Actors().Upsert(ctx, &actors[i]); err != nil {
					return fmt.Errorf("upsert actor %s: %w", actors[i].ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d actors\n", len(actors))
		return nil
	},
}
