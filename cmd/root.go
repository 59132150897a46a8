package cmd

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Run() {
	var command = &cobra.Command{
		Use:   "callq",
		Short: "Persisted, retryable job execution with cron dispatch",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	command.AddCommand(apiCmd())
	command.AddCommand(workerCmd())
	command.AddCommand(pruneCmd())

	if err := command.Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}
