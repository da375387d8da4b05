package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [bot.yaml]",
	Short: "Serve the bot over HTTP",
	Long: `Starts the runtime with the HTTP provider: POST /chat, webhooks, GET /events (SSE),
/health and Prometheus /metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.ServeOptions{RunOptions: runOptions(cmd, args)}
		opts.Port, _ = cmd.Flags().GetInt("port")
		opts.MCPPort, _ = cmd.Flags().GetInt("mcp-port")

		ctx, stop := cli.ShutdownContext(cmd.Context(), cmd.ErrOrStderr(), os.Exit)
		defer stop()
		return cli.Serve(ctx, opts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from configuration, 5000)")
	serveCmd.Flags().Int("mcp-port", 0, "Also serve MCP over SSE on this port")
}
