package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiToken  string
	client    *APIClient
)

var rootCmd = &cobra.Command{
	Use:   "taskpulse-cli",
	Short: "Command-line client for a running taskpulse server",
	Long: `taskpulse-cli drives the taskpulse HTTP API: workspace discovery,
status monitor control, snapshot inspection, and the live change feed.

The server address and API token can also be supplied through the
TASKPULSE_SERVER and TASKPULSE_API_TOKEN environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = NewAPIClient(serverURL, apiToken)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("TASKPULSE_SERVER", "http://127.0.0.1:8080"), "base URL of the taskpulse server")
	rootCmd.PersistentFlags().StringVarP(&apiToken, "token", "t", os.Getenv("TASKPULSE_API_TOKEN"), "API bearer token")
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
