// Package cli implements the tacholink command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tacholink/tacholink/internal/config"
)

var (
	configPath string
	deviceAddr string
	outputDir  string
	password   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tacholink",
	Short: "Tachograph BLE download tool",
	Long: `Tacholink - download tool for BLE tachograph adapters.

Authenticates against the adapter, drives the reverse-engineered download
protocol, and stores vehicle unit (.tgd) and driver card (.ddd) artifacts.
The protocol dialect (UUIDs, timeouts, response heuristics) is configurable
because the device firmware is undocumented.

Connection: --device AA:BB:CC:DD:EE:FF, or omit to scan and take the first
adapter advertising the dialect's service.`,
	Version:      "0.3.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
		if deviceAddr != "" {
			cfg.Device.Address = deviceAddr
		}
		if outputDir != "" {
			cfg.Output.Dir = outputDir
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.config/tacholink/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&deviceAddr, "device", "d", "", "device address (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "artifact output directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "device credential sent during authentication")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the config from the given path, or falls back to the
// default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("config loaded", "path", defaultPath)
		return c, nil
	}

	return config.Default(), nil
}
