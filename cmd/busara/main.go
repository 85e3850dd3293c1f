// Busara — rule-routed agent gateway with workflow execution.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "busara",
	Short: "Busara — rule-routed AI agent gateway with workflow execution.",
	Long: `Busara routes incoming messages to configured agent personas using a
composable rule language, and executes multi-step agent workflows as
directed graphs with conditional routing. It exposes HTTP and WebSocket
chat surfaces backed by OpenAI-compatible or Anthropic providers.`,
	RunE:          runServer, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd, chatCmd, replCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
