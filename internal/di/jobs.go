package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/config"
	"github.com/aristath/watchtower/internal/scheduler"
)

// barRetention bounds the price cache; the longest lookback is well under it
const barRetention = 3 * 365 * 24 * time.Hour

// JobInstances holds the scheduled jobs so they can be triggered manually
type JobInstances struct {
	DailyPass   *scheduler.DailyPassJob
	WeeklySweep *scheduler.WeeklySweepJob
}

// RegisterJobs creates the jobs and registers them with sched when it is non-nil
func RegisterJobs(c *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		DailyPass:   scheduler.NewDailyPassJob(c.Runner, log),
		WeeklySweep: scheduler.NewWeeklySweepJob(c.SignalRepo, c.PriceRepo, barRetention, log, c.MainDB, c.CacheDB),
	}
	if sched == nil {
		return jobs, nil
	}

	if err := sched.AddJob(cfg.DailySchedule, jobs.DailyPass); err != nil {
		return nil, fmt.Errorf("failed to register daily pass (%q): %w", cfg.DailySchedule, err)
	}
	if err := sched.AddJob(cfg.WeeklySchedule, jobs.WeeklySweep); err != nil {
		return nil, fmt.Errorf("failed to register weekly sweep (%q): %w", cfg.WeeklySchedule, err)
	}
	return jobs, nil
}
