package signals

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	in := domain.Signal{
		Ticker:    "7203.T",
		Type:      domain.SignalRSIReversal,
		Priority:  domain.PriorityMedium,
		Message:   "RSI recovered above 30",
		Detail:    map[string]interface{}{"rsi": 31.5, "direction": "up"},
		IsValid:   true,
		CreatedAt: created,
		ExpiresAt: created.Add(7 * 24 * time.Hour),
	}
	id, err := repo.Insert(ctx, in)
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	in.ID = id
	assert.Equal(t, in, *got)

	_, err = repo.Get(ctx, id+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepositoryRejectsSecondValidSignal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	s := domain.Signal{Ticker: "X", Type: domain.SignalGoldenCross, Priority: domain.PriorityHigh,
		Message: "cross", IsValid: true, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	_, err := repo.Insert(ctx, s)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, s)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))

	s.ExpiresAt = now.Add(-time.Hour)
	_, err = repo.Insert(ctx, s)
	assert.Error(t, err, "expiry before creation is rejected")
}

func TestRepositoryApplyPlan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	plan := Plan{Create: []domain.Signal{
		{Ticker: "A", Type: domain.SignalGoldenCross, Priority: domain.PriorityHigh, Message: "a", IsValid: true, CreatedAt: day, ExpiresAt: day.Add(7 * 24 * time.Hour)},
		{Ticker: "B", Type: domain.SignalVolumeSpike, Priority: domain.PriorityHigh, Message: "b", IsValid: true, CreatedAt: day, ExpiresAt: day.Add(7 * 24 * time.Hour)},
	}}
	created, err := repo.Apply(ctx, plan)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotZero(t, created[0].ID)

	later := day.Add(24 * time.Hour)
	inv := created[0]
	inv.IsValid = false
	inv.InvalidatedAt = &later
	_, err = repo.Apply(ctx, Plan{Invalidate: []domain.Signal{inv}})
	require.NoError(t, err)

	valid, err := repo.Valid(ctx)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "B", valid[0].Ticker)

	got, err := repo.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.False(t, got.IsValid)
	require.NotNil(t, got.InvalidatedAt)
	assert.Equal(t, later, *got.InvalidatedAt)

	// the slot is free again once invalidated
	_, err = repo.Insert(ctx, plan.Create[0])
	assert.NoError(t, err)
}

func TestRepositoryExpireDueAndPending(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	_, err := repo.Insert(ctx, domain.Signal{Ticker: "OLD", Type: domain.SignalDividendChance, Priority: domain.PriorityLow,
		Message: "old", IsValid: true, CreatedAt: day, ExpiresAt: day.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, domain.Signal{Ticker: "NEW", Type: domain.SignalDividendChance, Priority: domain.PriorityLow,
		Message: "new", IsValid: true, CreatedAt: day.Add(3 * 24 * time.Hour), ExpiresAt: day.Add(10 * 24 * time.Hour)})
	require.NoError(t, err)

	sweep := day.Add(8 * 24 * time.Hour)
	pending, err := repo.PendingSignals(ctx, sweep)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "NEW", pending[0].Ticker)

	n, err := repo.ExpireDue(ctx, sweep)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := repo.Active(ctx, sweep)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "NEW", active[0].Ticker)
}
