package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley runs conversational bots defined as state machines",
	Long: `Parley loads a bot (intents, entities and an execution graph) from a YAML file
and converses with it on the terminal, over HTTP or through MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default parley.yaml when present)")
	rootCmd.PersistentFlags().StringP("bot", "b", "", "Bot definition file, overrides the configuration")
	rootCmd.PersistentFlags().Bool("debug", false, "Log everything to stderr")
}

// runOptions reads the persistent flags. A positional argument names the bot
// file when --bot is not set.
func runOptions(cmd *cobra.Command, args []string) cli.RunOptions {
	configPath, _ := cmd.Flags().GetString("config")
	botPath, _ := cmd.Flags().GetString("bot")
	debug, _ := cmd.Flags().GetBool("debug")
	if botPath == "" && len(args) > 0 {
		botPath = args[0]
	}
	return cli.RunOptions{
		ConfigPath: configPath,
		BotPath:    botPath,
		Debug:      debug,
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
	}
}
