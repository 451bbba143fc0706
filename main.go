/*
Package main
File: main.go
Description: Command-line entry point. 'tycoon serve' runs the economy server:
the per-player sessions and their passive income ticker, the real-time
WebSocket hub, and the REST API. 'tycoon catalog' and 'tycoon token' are
helpers for balancing the catalog and playing locally.
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/everforgeworks/idle-tycoon/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "tycoon",
	Short:         "Idle tycoon economy server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tycoon.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(serveCmd, catalogCmd, tokenCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config fail: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
