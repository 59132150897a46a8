package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"callq/internal/api"
	"callq/internal/callback"
	"callq/internal/config"
	"callq/internal/infra/spool"
	"callq/internal/retention"
	"callq/internal/store"
	"callq/internal/usecase"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		Run: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg := config.Load()

			db, err := store.Open(cfg.Database)
			if err != nil {
				log.Fatal().Err(err).Msg("open store")
			}
			defer db.Close()

			registry := callback.NewRegistry()
			registry.Register(retention.CallbackPath, retention.Callback(db))

			runner := &usecase.Runner{Store: db, Registry: registry}
			if cfg.Redis.Addr != "" {
				cli := spool.New(cfg.Redis)
				if err := cli.Init(context.Background()); err != nil {
					log.Fatal().Err(err).Msg("init spooler")
				}
				runner.Spooler = cli
			} else {
				log.Info().Msg("no spooling engine configured, spooled work runs inline")
			}

			server := api.NewServer(db, runner)
			server.Run(port)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
