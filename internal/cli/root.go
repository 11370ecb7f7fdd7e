// Package cli implements the coach server commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/config"
	"github.com/peakmind/coach/internal/logging"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "coach",
	Short:         "Sports psychology assistant API",
	Long:          "HTTP backend for a conversational sports psychology coach: profiles, retrieval-augmented chat and text to speech.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	logger = logger.With(zap.String("env", cfg.Environment))
	return cfg, logger, nil
}
