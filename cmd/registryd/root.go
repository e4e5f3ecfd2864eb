package main

import (
	"fmt"

	"people-registry/config"
	"people-registry/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "registryd",
	Short:   "People registry ledger service",
	Version: version,
	// Errors are logged by the subcommands.
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./config.yaml or ./config/config.yaml)")
}

// loadConfig reads the config file and REGISTRY_ environment overrides and
// builds the process logger from it.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}
