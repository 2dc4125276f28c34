// Package cmd provides CLI commands for canvasctl.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar4mirez/pixring/pkg/canvasclient"
)

var (
	// Global flags
	serverURL  string
	outputJSON bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "canvasctl",
	Short: "canvasctl - drive a pixel canvas replica",
	Long: `canvasctl is a command-line tool for interacting with a canvas
replica's HTTP and websocket front end.

Use canvasctl to:
  - Fetch the full canvas snapshot
  - Submit a single pixel write
  - Watch replication outcomes and leadership changes live`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getEnvOrDefault("CANVASCTL_URL", canvasclient.DefaultBaseURL), "replica server URL")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "output in JSON format")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(watchCmd)
}

func newClient() *canvasclient.Client {
	return canvasclient.New(
		canvasclient.WithBaseURL(serverURL),
		canvasclient.WithTimeout(10*time.Second),
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
