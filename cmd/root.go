package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "production-service",
	Short: "Daily food production and delivery tracking service",
	Long:  `Tracks daily food production against store demand and records what was shipped to each store`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
