package pipeline

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
	"github.com/aristath/watchtower/internal/events"
	"github.com/aristath/watchtower/internal/metrics"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/indicators"
	"github.com/aristath/watchtower/internal/modules/notifications"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/risk"
	"github.com/aristath/watchtower/internal/modules/screening"
	"github.com/aristath/watchtower/internal/modules/signals"
	testingpkg "github.com/aristath/watchtower/internal/testing"
)

// passDay is the 120th fixture bar
var passDay = testingpkg.FixtureStart.AddDate(0, 0, 119)

type harness struct {
	runner   *Runner
	db       *database.DB
	prices   *testingpkg.MockPriceSource
	funds    *testingpkg.MockFundamentalsSource
	notifier *testingpkg.MockNotifier
	bus      *events.Bus
	book     *portfolio.Repository
	runs     *RunRepository
	notices  *notifications.Repository
}

type pending struct {
	alerts  *alerts.Repository
	signals *signals.Repository
}

func (p pending) PendingAlerts(ctx context.Context) ([]domain.Alert, error) {
	return p.alerts.PendingAlerts(ctx)
}

func (p pending) PendingSignals(ctx context.Context, now time.Time) ([]domain.Signal, error) {
	return p.signals.PendingSignals(ctx, now)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameMain)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	conn := db.Conn()
	h := &harness{
		db:       db,
		prices:   testingpkg.NewMockPriceSource(),
		funds:    testingpkg.NewMockFundamentalsSource(),
		notifier: testingpkg.NewMockNotifier("mock"),
		bus:      events.NewBus(),
		book:     portfolio.NewRepository(conn, log),
		runs:     NewRunRepository(conn, log),
		notices:  notifications.NewRepository(conn, log),
	}

	detector := signals.NewDetector(signals.DefaultConfig(), log)
	alertRepo := alerts.NewRepository(conn, log)
	signalRepo := signals.NewRepository(conn, log)
	manager := events.NewManager(h.bus, log)
	reg := metrics.NewRegistry(log)

	deps := Deps{
		Store:         conn,
		Book:          portfolio.NewService(h.book, log),
		Prices:        h.prices,
		Fundamentals:  h.funds,
		Indicators:    indicators.DefaultParams(),
		Risk:          risk.NewCalculator(0, log),
		Health:        health.NewScorer(health.DefaultConfig(), log),
		Screening:     screening.NewScorer(screening.DefaultConfig(), log),
		Detector:      detector,
		Tracker:       signals.NewTracker(detector, log),
		Alerts:        alerts.NewGenerator(alerts.DefaultConfig(), log),
		RiskRepo:      risk.NewRepository(conn, log),
		ScreeningRepo: screening.NewRepository(conn, log),
		SignalRepo:    signalRepo,
		AlertRepo:     alertRepo,
		Runs:          h.runs,
		Events:        manager,
		Metrics:       reg,
	}
	deps.Dispatcher = notifications.NewDispatcher(notifications.DefaultPolicy(), h.notices,
		pending{alertRepo, signalRepo}, []domain.Notifier{h.notifier}, manager, reg, log)

	h.runner = NewRunner(Config{
		Indices:       []string{"^N225"},
		Concurrency:   2,
		TickerTimeout: time.Second,
		LookbackDays:  400,
	}, deps, log)
	h.runner.now = func() time.Time { return passDay.Add(18 * time.Hour) }
	return h
}

// seedBook creates one portfolio with the three fixture holdings and gives
// every ticker except 8306.T a price history
func (h *harness) seedBook(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	pid, err := h.book.CreatePortfolio(ctx, "main", testingpkg.FixtureStart)
	require.NoError(t, err)
	for _, holding := range testingpkg.NewHoldingFixtures(pid) {
		_, err := h.book.AddHolding(ctx, holding)
		require.NoError(t, err)
	}
	require.NoError(t, h.book.Watch(ctx, domain.WatchlistItem{Ticker: "9432.T", Name: "NTT", Sector: "Communication", AddedAt: testingpkg.FixtureStart}))

	h.prices.SetBars("7203.T", testingpkg.NewTrendFixtures("7203.T", testingpkg.FixtureStart, 120, 2400, 2))
	h.prices.SetBars("6758.T", testingpkg.NewTrendFixtures("6758.T", testingpkg.FixtureStart, 120, 3200, -1))
	h.prices.SetBars("9432.T", testingpkg.NewTrendFixtures("9432.T", testingpkg.FixtureStart, 120, 150, 0.1))
	h.prices.SetBars("^N225", testingpkg.NewTrendFixtures("^N225", testingpkg.FixtureStart, 120, 33000, 10))
	h.prices.SetError("8306.T", errors.New("provider returned 404"))

	h.funds.Set(testingpkg.NewFundamentalsFixture("7203.T", "Consumer Cyclical", 9, 1.1, 0.028))
	h.funds.Set(testingpkg.NewFundamentalsFixture("6758.T", "Technology", 18, 2.4, 0.006))
	return pid
}

func TestRunPartialPass(t *testing.T) {
	h := newHarness(t)
	pid := h.seedBook(t)
	ctx := context.Background()

	stream, cancel := h.bus.Subscribe(32, events.PassCompleted, events.DataGapDetected)
	defer cancel()

	s, err := h.runner.Run(ctx, passDay)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, s.Status)
	assert.Equal(t, "2024-04-29", s.Date)
	assert.Equal(t, []Gap{{Ticker: "8306.T", Reason: "provider returned 404"}}, s.Gaps)
	assert.Equal(t, 4, s.Counts.Tickers)
	assert.Equal(t, 3, s.Counts.Scored, "watchlist ticker without fundamentals is still scored")
	assert.Equal(t, 1, s.Counts.Portfolios)
	assert.False(t, h.runner.Running())

	snap, err := risk.NewRepository(h.db.Conn(), zerolog.Nop()).Latest(ctx, pid)
	require.NoError(t, err)
	assert.True(t, snap.Date.Equal(passDay))
	assert.Greater(t, snap.HealthScore, 0.0)

	latest, ok, err := screening.NewRepository(h.db.Conn(), zerolog.Nop()).LatestDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(passDay))

	done, err := h.notices.HasRun(ctx, s.Date)
	require.NoError(t, err)
	assert.True(t, done)

	stored, err := h.runs.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.RunID, stored.RunID)
	assert.Equal(t, StatusPartial, stored.Status)
	assert.Equal(t, s.Gaps, stored.Gaps)

	var gapEvents, completed int
	for len(stream) > 0 {
		switch (<-stream).Type {
		case events.DataGapDetected:
			gapEvents++
		case events.PassCompleted:
			completed++
		}
	}
	assert.Equal(t, 1, gapEvents)
	assert.Equal(t, 1, completed)
}

func TestRunTwiceSameDay(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	ctx := context.Background()

	first, err := h.runner.Run(ctx, passDay)
	require.NoError(t, err)
	second, err := h.runner.Run(ctx, passDay)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, StatusPartial, second.Status, "skipped dispatch is not an error")
	assert.Zero(t, second.Counts.SignalsCreated, "valid signals are not duplicated")
	assert.Zero(t, second.Counts.AlertsCreated, "open alerts are not duplicated")
	assert.LessOrEqual(t, len(h.notifier.Batches()), 1)

	list, err := h.runs.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestBackfillKeepsTodaysDispatch(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	ctx := context.Background()
	backfill := passDay.AddDate(0, 0, -3)

	old, err := h.runner.Run(ctx, backfill)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-26", old.Date)

	done, err := h.notices.HasRun(ctx, "2024-04-26")
	require.NoError(t, err)
	assert.True(t, done, "the backfill dispatch is recorded under its own date")
	done, err = h.notices.HasRun(ctx, "2024-04-29")
	require.NoError(t, err)
	assert.False(t, done)

	today, err := h.runner.Run(ctx, passDay)
	require.NoError(t, err)
	assert.Empty(t, today.Errors)

	done, err = h.notices.HasRun(ctx, "2024-04-29")
	require.NoError(t, err)
	assert.True(t, done, "the regular pass still owns its dispatch slot")
}

func TestRunRejectsOverlap(t *testing.T) {
	h := newHarness(t)
	h.runner.running.Store(true)

	_, err := h.runner.Run(context.Background(), passDay)
	assert.True(t, domain.IsConcurrencyConflict(err))
}

func TestRunStoreFailureIsStale(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	ctx := context.Background()

	_, err := h.db.Conn().Exec(`DROP TABLE watchlist`)
	require.NoError(t, err)

	s, err := h.runner.Run(ctx, passDay)
	require.Error(t, err)
	require.NotNil(t, s)
	assert.Equal(t, StatusStale, s.Status)

	stored, err := h.runs.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, stored.Status)
	assert.NotEmpty(t, stored.Errors)

	_, err = risk.NewRepository(h.db.Conn(), zerolog.Nop()).Latest(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunAlertWriteFailureRollsBackPass(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	ctx := context.Background()

	_, err := h.db.Conn().Exec(`CREATE TRIGGER reject_alerts BEFORE INSERT ON alerts
		BEGIN SELECT RAISE(ABORT, 'alerts unavailable'); END`)
	require.NoError(t, err)

	s, err := h.runner.Run(ctx, passDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts unavailable")
	assert.Equal(t, StatusStale, s.Status)

	_, err = risk.NewRepository(h.db.Conn(), zerolog.Nop()).Latest(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no risk snapshot survives a failed pass")

	_, ok, err := screening.NewRepository(h.db.Conn(), zerolog.Nop()).LatestDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	valid, err := signals.NewRepository(h.db.Conn(), zerolog.Nop()).Valid(ctx)
	require.NoError(t, err)
	assert.Empty(t, valid)

	done, err := h.notices.HasRun(ctx, s.Date)
	require.NoError(t, err)
	assert.False(t, done, "nothing is dispatched after a failed persist")
}

func TestRunCleanPassIsOK(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	h.prices.SetError("8306.T", nil)
	h.prices.SetBars("8306.T", testingpkg.NewTrendFixtures("8306.T", testingpkg.FixtureStart, 120, 1100, 1))

	s, err := h.runner.Run(context.Background(), passDay)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, s.Status)
	assert.Empty(t, s.Gaps)
}

func TestFetchTimeoutBecomesGap(t *testing.T) {
	h := newHarness(t)
	h.runner.cfg.TickerTimeout = 20 * time.Millisecond
	h.prices.SetBars("A", testingpkg.NewBarFixtures("A", passDay, 100))
	h.prices.SetBars("B", testingpkg.NewBarFixtures("B", passDay, 100))
	h.prices.SetDelay("B", time.Second)

	res, err := h.runner.fetch(context.Background(), []string{"A", "B"}, passDay, passDay, false)
	require.NoError(t, err)
	assert.Contains(t, res.data, "A")
	assert.Equal(t, []Gap{{Ticker: "B", Reason: "timeout"}}, res.gaps)
}

func TestFetchCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.fetch(ctx, []string{"A"}, passDay, passDay, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScreenDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	ctx := context.Background()

	top, err := h.runner.Screen(ctx, passDay, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
	assert.GreaterOrEqual(t, top[0].Score, top[1].Score)

	_, ok, err := screening.NewRepository(h.db.Conn(), zerolog.Nop()).LatestDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTriggerHoldsRunSlot(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t)
	h.prices.SetDelay("7203.T", 200*time.Millisecond)

	done, err := h.runner.Trigger(context.Background(), passDay)
	require.NoError(t, err)
	assert.True(t, h.runner.Running())

	_, err = h.runner.Trigger(context.Background(), passDay)
	assert.True(t, domain.IsConcurrencyConflict(err))

	require.NoError(t, <-done)
	assert.Eventually(t, func() bool { return !h.runner.Running() }, time.Second, 10*time.Millisecond)
}
