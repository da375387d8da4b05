package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [bot.yaml]",
	Short: "Run the Model Context Protocol (MCP) server on stdio",
	Long: `Exposes the bot to MCP clients through the send_message, send_event and
list_intents tools and the parley://graph resource. Logs go to stderr so that
stdout carries JSON-RPC only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cli.ShutdownContext(cmd.Context(), cmd.ErrOrStderr(), os.Exit)
		defer stop()
		return cli.ServeMCP(ctx, runOptions(cmd, args))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
