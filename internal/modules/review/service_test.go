package review

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
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/signals"
	"github.com/aristath/watchtower/internal/modules/simulation"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

var (
	barStart = time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	reviewAt = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      *Service
	prices   *testingpkg.MockPriceSource
	signals  *signals.Repository
	alerts   *alerts.Repository
	risingID int64
	fallID   int64
	recentID int64
	stopID   int64
	healthID int64
}

func newFixture(t *testing.T) (*fixture, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	ctx := context.Background()
	log := zerolog.Nop()

	prices := testingpkg.NewMockPriceSource()
	prices.SetBars("AAA", testingpkg.NewTrendFixtures("AAA", barStart, 61, 100, 1))
	prices.SetBars("BBB", testingpkg.NewTrendFixtures("BBB", barStart, 61, 200, -1))

	portfolios := portfolio.NewRepository(db.Conn(), log)
	pid, err := portfolios.CreatePortfolio(ctx, "main", barStart)
	require.NoError(t, err)
	_, err = portfolios.AddHolding(ctx, domain.Holding{PortfolioID: pid, Ticker: "BBB", Shares: 100, BuyPrice: 200, BuyDate: barStart})
	require.NoError(t, err)

	f := &fixture{
		prices:  prices,
		signals: signals.NewRepository(db.Conn(), log),
		alerts:  alerts.NewRepository(db.Conn(), log),
	}
	insert := func(ticker string, typ domain.SignalType, at time.Time) int64 {
		id, err := f.signals.Insert(ctx, domain.Signal{
			Ticker: ticker, Type: typ, Priority: typ.Priority(), Message: string(typ),
			IsValid: true, CreatedAt: at, ExpiresAt: at.AddDate(0, 0, 7),
		})
		require.NoError(t, err)
		return id
	}
	f.risingID = insert("AAA", domain.SignalGoldenCross, time.Date(2024, 2, 5, 10, 0, 0, 0, time.UTC))
	f.fallID = insert("BBB", domain.SignalRSIReversal, time.Date(2024, 2, 10, 10, 0, 0, 0, time.UTC))
	f.recentID = insert("AAA", domain.SignalVolumeSpike, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	bbb := "BBB"
	created, err := f.alerts.Apply(ctx, alerts.Plan{Create: []domain.Alert{
		{PortfolioID: pid, Ticker: &bbb, Type: domain.AlertStopLoss, Level: domain.LevelWarning,
			Message: "stop", CreatedAt: time.Date(2024, 2, 12, 9, 0, 0, 0, time.UTC)},
		{PortfolioID: pid, Type: domain.AlertHealthDanger, Level: domain.LevelSevere,
			Message: "health", CreatedAt: time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC)},
	}})
	require.NoError(t, err)
	f.stopID, f.healthID = created[0].ID, created[1].ID
	require.NoError(t, f.alerts.MarkRead(ctx, f.healthID))

	sims := simulation.NewRepository(db.Conn(), log)
	_, err = sims.Save(ctx, simulation.Result{Scenario: simulation.ScenarioStopLoss, Title: "t", Summary: "s",
		CreatedAt: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	f.svc = NewService(prices, f.signals, f.alerts, portfolios, sims, log)
	f.svc.now = func() time.Time { return reviewAt }
	return f, cleanup
}

func TestSignalOutcome(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	out, err := f.svc.SignalOutcome(ctx, f.risingID)
	require.NoError(t, err)
	assert.Equal(t, "AAA", out.Ticker)
	require.NotNil(t, out.PriceAtSignal)
	assert.InDelta(t, 116.4, *out.PriceAtSignal, 1e-9)
	require.NotNil(t, out.PriceAfter7d)
	assert.InDelta(t, 122.6, *out.PriceAfter7d, 1e-9)
	require.NotNil(t, out.PriceAfter30d)
	require.NotNil(t, out.Change30dPct)
	assert.Positive(t, *out.Change30dPct)
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)

	recent, err := f.svc.SignalOutcome(ctx, f.recentID)
	require.NoError(t, err)
	assert.NotNil(t, recent.PriceAtSignal)
	assert.Nil(t, recent.PriceAfter7d, "horizon still in the future")
	assert.Nil(t, recent.Success)

	_, err = f.svc.SignalOutcome(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalOutcomeWithoutPrices(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	f.prices.SetError("BBB", errors.New("provider down"))
	out, err := f.svc.SignalOutcome(context.Background(), f.fallID)
	require.NoError(t, err)
	assert.Nil(t, out.PriceAtSignal)
	assert.Nil(t, out.Success)
}

func TestAlertOutcome(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	stop, err := f.svc.AlertOutcome(ctx, f.stopID)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, stop.Action)
	require.NotNil(t, stop.WarningHeld)
	assert.True(t, *stop.WarningHeld)
	require.NotNil(t, stop.PortfolioImpact)
	assert.InDelta(t, -3000, *stop.PortfolioImpact, 1e-6)

	health, err := f.svc.AlertOutcome(ctx, f.healthID)
	require.NoError(t, err)
	assert.Equal(t, ActionRead, health.Action)
	assert.Nil(t, health.Ticker)
	assert.Nil(t, health.PriceAtAlert)
	assert.Nil(t, health.PortfolioImpact)

	_, err = f.svc.AlertOutcome(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMonthlyReview(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	rv, err := f.svc.Monthly(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "monthly", rv.Period)
	assert.Equal(t, "2024-02-01", rv.PeriodStart)
	assert.Equal(t, "2024-02-29", rv.PeriodEnd)
	assert.Equal(t, 2, rv.SignalsTotal)
	assert.Equal(t, 2, rv.SignalsScored)
	assert.Equal(t, 1, rv.SignalsHit)
	require.NotNil(t, rv.SignalAccuracy)
	assert.InDelta(t, 0.5, *rv.SignalAccuracy, 1e-9)

	assert.Equal(t, 2, rv.AlertsTotal)
	assert.Equal(t, 1, rv.AlertsRead)
	require.NotNil(t, rv.AlertReadRate)
	assert.InDelta(t, 0.5, *rv.AlertReadRate, 1e-9)
	require.NotNil(t, rv.IgnoredImpact)
	assert.InDelta(t, -3000, *rv.IgnoredImpact, 1e-6)
	assert.Equal(t, 1, rv.SimulationsRun)

	assert.Contains(t, rv.Highlights, "Signal accuracy 50% (1 of 2)")
	assert.Contains(t, rv.Highlights, "Read 1 of 2 alerts")
	assert.Contains(t, rv.Highlights, "Ran 1 what-if simulations")
}

func TestWeeklyReview(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	rv, err := f.svc.Weekly(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", rv.PeriodStart)
	assert.Equal(t, "2024-03-17", rv.PeriodEnd)
	assert.Equal(t, 1, rv.SignalsTotal)
	assert.Equal(t, 0, rv.SignalsScored)
	assert.Nil(t, rv.SignalAccuracy)
	assert.Nil(t, rv.AlertReadRate)
	assert.Zero(t, rv.SimulationsRun)
	assert.Empty(t, rv.Highlights)

	current, err := f.svc.Weekly(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-18", current.PeriodStart)
	assert.Zero(t, current.SignalsTotal)
	assert.NotNil(t, current.Signals)

	var cfg *domain.ConfigurationError
	_, err = f.svc.Weekly(ctx, MaxWeeksAgo+1)
	require.ErrorAs(t, err, &cfg)
	_, err = f.svc.Monthly(ctx, -1)
	require.ErrorAs(t, err, &cfg)
}
