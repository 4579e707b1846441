package main

import (
	"os"

	"github.com/spf13/cobra"
	"max.ks1230/beancount-bot/internal/logger"
)

func main() {
	err := newRootCommand().Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serveCmd := newServeCommand()

	rootCmd := &cobra.Command{
		Use:   "beancount-bot",
		Short: "Telegram bot writing transactions to a beancount ledger in git",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serveCmd.RunE,
	}
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd, newCheckCommand())
	return rootCmd
}
