package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"callq/internal/config"
	"callq/internal/retention"
	"callq/internal/store"
)

func pruneCmd() *cobra.Command {
	var keep int
	var command = &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent call records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := store.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if keep <= 0 {
				keep = cfg.Retention.Keep
			}
			n, err := retention.Prune(context.Background(), db, keep)
			if err != nil {
				return err
			}
			log.Info().Int64("pruned", n).Int("keep", keep).Msg("prune complete")
			return nil
		},
	}

	command.Flags().IntVar(&keep, "keep", 0, "How many recent calls to keep (0 uses config)")
	return command
}
