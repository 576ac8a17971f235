package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/prices"
	"github.com/aristath/watchtower/internal/modules/signals"
	"github.com/aristath/watchtower/internal/pipeline"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

type fakeRunner struct {
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, date time.Time) (*pipeline.Summary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Summary{RunID: "run", Date: domain.DateKey(date), Status: pipeline.StatusOK}, nil
}

func TestDailyPassJob(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "ok"},
		{name: "overlap is skipped", err: &domain.ConcurrencyConflictError{Key: "pipeline"}},
		{name: "failure surfaces", err: errors.New("store down"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			job := NewDailyPassJob(runner, zerolog.Nop())
			err := job.Run(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, runner.calls)
		})
	}
}

func TestWeeklySweepJob(t *testing.T) {
	mainDB, cleanupMain := testingpkg.NewTestDB(t, database.NameMain)
	defer cleanupMain()
	cacheDB, cleanupCache := testingpkg.NewTestDB(t, database.NameCache)
	defer cleanupCache()

	ctx := context.Background()
	log := zerolog.Nop()
	now := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)

	sigRepo := signals.NewRepository(mainDB.Conn(), log)
	_, err := sigRepo.Insert(ctx, domain.Signal{
		Ticker: "7203.T", Type: domain.SignalGoldenCross, Priority: domain.PriorityHigh,
		Message: "cross", IsValid: true, CreatedAt: now.AddDate(0, 0, -10), ExpiresAt: now.AddDate(0, 0, -3),
	})
	require.NoError(t, err)

	barRepo := prices.NewRepository(cacheDB.Conn(), log)
	_, err = barRepo.SaveBars(ctx, testingpkg.NewBarFixtures("7203.T", now.AddDate(-3, 0, 0), 100, 101))
	require.NoError(t, err)
	_, err = barRepo.SaveBars(ctx, testingpkg.NewBarFixtures("7203.T", now.AddDate(0, 0, -5), 110))
	require.NoError(t, err)

	job := NewWeeklySweepJob(sigRepo, barRepo, 2*365*24*time.Hour, log, mainDB, cacheDB)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(ctx))

	valid, err := sigRepo.Valid(ctx)
	require.NoError(t, err)
	assert.Empty(t, valid)

	bars, err := barRepo.Bars(ctx, "7203.T", now.AddDate(-5, 0, 0), now)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 110.0, bars[0].Close)
}

type countingJob struct {
	runs int
}

func (c *countingJob) Name() string { return "counting" }

func (c *countingJob) Run(ctx context.Context) error {
	c.runs++
	return ctx.Err()
}

func TestSchedulerRunNowAndStop(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.AddJob("0 30 18 * * 1-5", job))
	assert.Error(t, s.AddJob("not a schedule", job))

	s.Start()
	require.NoError(t, s.RunNow(job))
	s.Stop()

	assert.Equal(t, 1, job.runs)
	assert.ErrorIs(t, s.RunNow(job), context.Canceled, "jobs see the cancelled context after Stop")
}
