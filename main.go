package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "opd-explorer",
	Short: "Find and download police datasets from the OpenPoliceData catalog",
	Long: `opd-explorer narrows the OpenPoliceData catalog, filter by filter, to a single
dataset and retrieves it as CSV.

Examples:
  # Run the HTTP API
  opd-explorer serve

  # Show the next choice for a partial selection
  opd-explorer resolve --state Virginia --source "Fairfax County"

  # Download a fully resolved dataset
  opd-explorer fetch --state Virginia --source Richmond --table STOPS --year 2022`,
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")

	rootCmd.AddCommand(serveCmd(), resolveCmd(), fetchCmd(), linkCmd(), catalogCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
