package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [bot.yaml]",
	Short: "Converse with the bot on the terminal",
	Long:  `Starts the runtime and reads one message per line from stdin until EOF or Ctrl+C.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")

		ctx, stop := cli.ShutdownContext(cmd.Context(), cmd.ErrOrStderr(), os.Exit)
		defer stop()
		return cli.Run(ctx, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session ID to resume (default console)")
	runCmd.Flags().BoolP("watch", "w", false, "Reload the bot when its file changes")
	runCmd.Flags().Bool("fresh", false, "Start the session from scratch")

	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
