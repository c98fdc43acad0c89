package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vcv/pkg/config"
)

var flagConfig string

// configPaths are tried in order when --config is not given.
var configPaths = []string{
	"configs/config.yaml",
	"/etc/vcv/config.yaml",
	"config.yaml",
}

var rootCmd = &cobra.Command{
	Use:   "vcv-sfu",
	Short: "Selective forwarding unit for multi-party video calls",
	Long: `vcv-sfu runs the signaling gateway and the WebRTC media plane of a
multi-party call service. Clients join rooms over WebSocket, publish their
tracks and receive everybody else's through the server.`,
}

// Execute runs the root command; serve is the default action.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the YAML config file")
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(serveCmd, tokenCmd)
}

// loadConfig reads the explicit path, or the first candidate that exists.
// With no file at all the defaults are used.
func loadConfig() (*config.Config, string, error) {
	if flagConfig != "" {
		if _, err := os.Stat(flagConfig); err != nil {
			return nil, "", fmt.Errorf("config file: %w", err)
		}
		cfg, err := config.Load(flagConfig)
		return cfg, flagConfig, err
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	cfg, err := config.Load("")
	return cfg, "", err
}
