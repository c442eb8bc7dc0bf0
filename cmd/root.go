// Package cmd implements the grimoire command line interface.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grimoire-ai/grimoire/internal/config"
	"github.com/grimoire-ai/grimoire/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "grimoire",
	Short: "Grimoire - a rules assistant for Pathfinder Second Edition",
	Long: `Grimoire answers Pathfinder Second Edition rules questions from the
official source material. It ingests structured game data into a vector
store and serves retrieval-augmented chat over it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
