package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Strategy composition and backtest engine for A-share trading",
	Long: `Quant CLI

Composes three-layer trading strategies (selector, entry, exit),
validates and sandboxes user-submitted strategy code, and simulates
combinations over historical daily bars.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant api
  go run ./cmd/quant backtest --selector momentum --entry immediate --exits stop_loss
  go run ./cmd/quant strategy seed
  go run ./cmd/quant strategy validate --file my_selector.go --class MySelector --role selector`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
