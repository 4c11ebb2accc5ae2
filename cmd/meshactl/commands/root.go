// Package commands implements the meshactl operator CLI: a thin client
// over a running meshactord's admin WebSocket surface.
package commands

import (
	"github.com/spf13/cobra"
)

var adminAddr string

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "meshactl",
	Short: "meshactl operator CLI for the network dispatcher",
	Long: `meshactl talks to a running meshactord's admin surface to
inspect connection state, queue depth, and deadlettered traffic.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&adminAddr, "admin", "localhost:8090",
		"Address of the running daemon's admin WebSocket surface",
	)

	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(deadlettersCmd)
}
