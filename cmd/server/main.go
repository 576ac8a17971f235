// Package main is the entry point for watchtower, the portfolio health and
// trading-signal service.
//
// Commands:
//   - serve: HTTP read API plus the cron scheduler (daily pass, weekly sweep)
//   - run:   a single daily pass, then exit
//   - screen: rank the held and watched universe without persisting
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/watchtower/internal/config"
	"github.com/aristath/watchtower/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "watchtower",
		Short:         "Portfolio health scoring and trading-signal detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newScreenCmd())
	return root
}

// bootstrap loads configuration and builds the logger shared by every command.
// Configuration errors are fatal before anything is opened.
func bootstrap() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}
