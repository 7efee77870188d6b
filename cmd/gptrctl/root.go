// gptrctl inspects the hazard history directly from the report store.
//
// Usage:
//
//	gptrctl hazards [--all] [--bbox=minLng,minLat,maxLng,maxLat] [--json]
//	gptrctl history <hazard-id> [--json]
//	gptrctl nearest --lat=<lat> --lng=<lng> [--json]
//	gptrctl stats [--json]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "gptrctl",
	Short: "Operator tool for the GPTR road hazard store",
	Long:  "gptrctl reads reports from the configured store and derives hazard\nstatuses the same way the API server does.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&globalFlags.configPath, "config", "", "Config file (TOML or YAML); defaults to $GPTR_CONFIG")
	f.StringVar(&globalFlags.driver, "driver", "", "Store driver: sqlite or mongo (overrides config)")
	f.StringVar(&globalFlags.dsn, "dsn", "", "SQLite path or Mongo URI (overrides config)")
	f.StringVar(&globalFlags.database, "database", "", "Mongo database name (overrides config)")
	f.BoolVar(&globalFlags.json, "json", false, "Print JSON instead of a table")

	rootCmd.AddCommand(hazardsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(nearestCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
