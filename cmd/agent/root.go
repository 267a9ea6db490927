package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-procurement-agent/internal/config"
	"go-procurement-agent/utils"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "procurement-agent",
	Short:        "Browse procurement portals and extract open bid opportunities",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to configuration file")
}

// setup loads the config and installs the global logger. The returned func
// flushes the logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}
	logger, err := utils.InitLog(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	undo := zap.ReplaceGlobals(logger)
	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
