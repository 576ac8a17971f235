package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/watchtower/internal/di"
)

func newRunCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one daily pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return runPass(day)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "pass date (YYYY-MM-DD), today by default")
	return cmd
}

func newScreenCmd() *cobra.Command {
	var (
		date string
		n    int
	)
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Rank the held and watched tickers without persisting",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return screen(day, n)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "screening date (YYYY-MM-DD), today by default")
	cmd.Flags().IntVarP(&n, "n", "n", 10, "number of results")
	return cmd
}

func runPass(day time.Time) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	container, _, err := di.Wire(cfg, di.Source{}, nil, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := container.Runner.Run(ctx, day)
	if err != nil {
		return err
	}

	fmt.Printf("run %s  date %s  status %s  (%s)\n", s.RunID, s.Date, s.Status, s.Duration().Round(time.Millisecond))
	fmt.Printf("tickers %d  scored %d  portfolios %d  healthy %t\n", s.Counts.Tickers, s.Counts.Scored, s.Counts.Portfolios, s.Healthy)
	fmt.Printf("signals +%d  expired %d  invalidated %d\n", s.Counts.SignalsCreated, s.Counts.SignalsExpired, s.Counts.SignalsInvalidated)
	fmt.Printf("alerts +%d  escalated %d  resolved %d\n", s.Counts.AlertsCreated, s.Counts.AlertsEscalated, s.Counts.AlertsResolved)
	fmt.Printf("notices dispatched %d  deferred %d  suppressed %d\n", s.Counts.Dispatched, s.Counts.Deferred, s.Counts.Suppressed)
	for _, g := range s.Gaps {
		fmt.Printf("gap %s: %s\n", g.Ticker, g.Reason)
	}
	for _, e := range s.Errors {
		fmt.Printf("error: %s\n", e)
	}
	return nil
}

func screen(day time.Time, n int) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	container, _, err := di.Wire(cfg, di.Source{}, nil, log)
	if err != nil {
		return fmt.Errorf("failed to wire dependencies: %w", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := container.Runner.Screen(ctx, day, n)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTICKER\tSECTOR\tSCORE\tVALUE\tMOMENTUM\tGROWTH\tSAFETY")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			i+1, r.Ticker, r.Sector, r.Score, r.ValueScore, r.MomentumScore, r.GrowthScore, r.SafetyScore)
	}
	return tw.Flush()
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Now(), nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", v)
	}
	return d, nil
}
