package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "collabdocs",
	Short: "CollabDocs - in-memory collaborative document server",
	Long: `CollabDocs keeps a set of documents in memory and serves them over a JSON API,
with a WebSocket presence channel per document so editors can see who else is viewing.

Run "collabdocs serve" to start the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newVersionCmd())
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
