package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/pipeline"
)

// PassRunner runs one daily pass
type PassRunner interface {
	Run(ctx context.Context, date time.Time) (*pipeline.Summary, error)
}

// DailyPassJob runs the pipeline for the current date
type DailyPassJob struct {
	runner PassRunner
	now    func() time.Time
	log    zerolog.Logger
}

// NewDailyPassJob creates the daily pass job
func NewDailyPassJob(runner PassRunner, log zerolog.Logger) *DailyPassJob {
	return &DailyPassJob{
		runner: runner,
		now:    time.Now,
		log:    log.With().Str("job", "daily_pass").Logger(),
	}
}

// Name returns the job name
func (j *DailyPassJob) Name() string {
	return "daily_pass"
}

// Run executes the pass. An overlapping trigger is skipped, not failed.
func (j *DailyPassJob) Run(ctx context.Context) error {
	s, err := j.runner.Run(ctx, j.now())
	if domain.IsConcurrencyConflict(err) {
		j.log.Warn().Msg("Pass already running, trigger skipped")
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().Str("run_id", s.RunID).Str("status", s.Status).Msg("Daily pass done")
	return nil
}

// SignalExpirer invalidates signals past their window
type SignalExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// BarPruner drops cached bars older than a cutoff
type BarPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WeeklySweepJob expires stale signals, prunes the bar cache, then checks
// integrity and checkpoints the WAL of each database
type WeeklySweepJob struct {
	signals   SignalExpirer
	bars      BarPruner
	databases []*database.DB
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewWeeklySweepJob creates the weekly maintenance job. Bars older than
// retention are pruned; a zero retention keeps every bar.
func NewWeeklySweepJob(signals SignalExpirer, bars BarPruner, retention time.Duration, log zerolog.Logger, databases ...*database.DB) *WeeklySweepJob {
	return &WeeklySweepJob{
		signals:   signals,
		bars:      bars,
		databases: databases,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "weekly_sweep").Logger(),
	}
}

// Name returns the job name
func (j *WeeklySweepJob) Name() string {
	return "weekly_sweep"
}

// Run executes the sweep. Only the signal expiry can fail the job.
func (j *WeeklySweepJob) Run(ctx context.Context) error {
	now := j.now()
	expired, err := j.signals.ExpireDue(ctx, now)
	if err != nil {
		return err
	}

	var pruned int64
	if j.bars != nil && j.retention > 0 {
		pruned, err = j.bars.PruneBefore(ctx, now.Add(-j.retention))
		if err != nil {
			j.log.Warn().Err(err).Msg("Failed to prune bar cache")
		}
	}

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database integrity check failed")
			continue
		}
		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to checkpoint WAL")
			continue
		}
		j.log.Debug().
			Str("database", db.Name()).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL checkpointed")
	}

	j.log.Info().
		Int64("signals_expired", expired).
		Int64("bars_pruned", pruned).
		Msg("Weekly sweep completed")
	return nil
}
