package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/watchtower/internal/di"
	"github.com/aristath/watchtower/internal/scheduler"
	"github.com/aristath/watchtower/internal/server"
)

func newServeCmd() *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run scheduled passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(topN)
		},
	}
	cmd.Flags().IntVar(&topN, "top", 20, "default size of screening listings")
	return cmd
}

func serve(topN int) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting watchtower")

	sched := scheduler.New(log)
	container, _, err := di.Wire(cfg, di.Source{}, sched, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		Port:      cfg.Port,
		ScreenTop: topN,
		DevMode:   cfg.DevMode,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sched.Start()
	log.Info().
		Int("port", cfg.Port).
		Str("daily", cfg.DailySchedule).
		Str("weekly", cfg.WeeklySchedule).
		Msg("Server and scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Shutting down...")

	// Scheduler first so no pass starts while the server drains
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return nil
}
