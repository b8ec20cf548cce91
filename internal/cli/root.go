// Package cli implements the snailmarketd command-line interface.
//
// This package uses global variables to manage CLI state, which is the
// standard pattern for Cobra-based applications. The globals are initialized
// in PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snaillabs/snailmarket/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Global state initialized in PersistentPreRunE
	cfg    *config.Config
	logger *config.Logger
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "snailmarketd",
	Short: "REST API server for the SnailMarket contract",
	Long: `snailmarketd serves a REST API over a deployed SnailMarket contract:
listing and adding snails, purchasing, balance lookup, and withdrawal.

All writes are signed server-side and submitted through the configured
Ethereum node. Keys are supplied via environment variables, encrypted key
files, or a BIP39 mnemonic - never through the config file.

Example:
  snailmarketd serve --config /etc/snailmarket/config.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

// initGlobals loads configuration and opens the logger.
func initGlobals() error {
	if configPath == "" {
		configPath = os.Getenv("SNAILMARKET_CONFIG")
	}

	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Defaults()
	}

	config.ApplyEnvironment(cfg)

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		// Fall back to a silent logger rather than refusing to start
		logger = config.NullLogger()
	}

	return nil
}

// cleanup flushes and closes global state.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra command registration
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (off, error, info, debug)")
}
