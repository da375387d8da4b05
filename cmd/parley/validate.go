package main

import (
	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [bot.yaml]",
	Short: "Check the bot definition",
	Long:  `Compiles the bot, checks its execution graph and trains the recognizer.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(cmd.Context(), runOptions(cmd, args))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
