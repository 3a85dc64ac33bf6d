package main

import (
	"github.com/iago/assessment-dispatch/internal/config"
	"github.com/iago/assessment-dispatch/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:          "assessment-dispatch",
	Short:        "Queue and run viva question and rubric generation jobs",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "Environment files to load before reading configuration")
}

// bootstrap loads configuration and installs the global logger. The returned
// func flushes and restores the previous logger.
func bootstrap() (config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	return cfg, logger, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
