package alerts

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/domain"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bars(ticker string, closes ...float64) []domain.PriceBar {
	out := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = domain.PriceBar{Ticker: ticker, Date: day0.AddDate(0, 0, i), Close: c, Open: c, High: c, Low: c, Volume: 1000}
	}
	return out
}

func newTestGenerator() *Generator {
	return NewGenerator(DefaultConfig(), zerolog.Nop())
}

func findingsOf(out Outcome, t domain.AlertType) []Finding {
	var res []Finding
	for _, f := range out.Findings {
		if f.Type == t {
			res = append(res, f)
		}
	}
	return res
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.CriticalStop = 0.10
	err := cfg.Validate()
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "alerts.deep_stop", cfgErr.Field)
}

func TestDailyDrop(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		wantLevel domain.AlertLevel
	}{
		{"exactly five percent is not a drop", []float64{100, 95}, 0},
		{"six percent is severe", []float64{100, 94}, domain.LevelSevere},
		{"eleven percent is critical", []float64{100, 89}, domain.LevelCritical},
		{"gain", []float64{100, 103}, 0},
	}

	g := newTestGenerator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := g.Evaluate(Input{
				Now:         day0,
				PortfolioID: 1,
				Positions:   []Position{{Ticker: "X", Bars: bars("X", tt.closes...), Shares: 10, BuyPrice: 50}},
			})
			assert.True(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Ticker: "X", Type: domain.AlertDailyDrop}])

			found := findingsOf(out, domain.AlertDailyDrop)
			if tt.wantLevel == 0 {
				assert.Empty(t, found)
				return
			}
			require.Len(t, found, 1)
			assert.Equal(t, tt.wantLevel, found[0].Level)
			assert.Equal(t, "X", *found[0].Ticker)
		})
	}
}

func TestDailyDropNeedsTwoBars(t *testing.T) {
	out := newTestGenerator().Evaluate(Input{
		PortfolioID: 1,
		Positions:   []Position{{Ticker: "X", Bars: bars("X", 90), Shares: 1, BuyPrice: 50}},
	})
	assert.False(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Ticker: "X", Type: domain.AlertDailyDrop}])
	assert.Empty(t, findingsOf(out, domain.AlertDailyDrop))
}

func TestStopLossTiers(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		wantStop bool
		wantDeep domain.AlertLevel
	}{
		{"above line", 950, false, 0},
		{"touching the line", 900, true, 0},
		{"deep", 840, true, domain.LevelSevere},
		{"critical", 790, true, domain.LevelCritical},
	}

	g := newTestGenerator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := g.Evaluate(Input{
				PortfolioID: 1,
				Positions:   []Position{{Ticker: "X", Bars: bars("X", tt.price, tt.price), Shares: 1, BuyPrice: 1000}},
			})

			stop := findingsOf(out, domain.AlertStopLoss)
			if tt.wantStop {
				require.Len(t, stop, 1)
				assert.Equal(t, domain.LevelWarning, stop[0].Level)
			} else {
				assert.Empty(t, stop)
			}

			deep := findingsOf(out, domain.AlertDeepStopLoss)
			if tt.wantDeep == 0 {
				assert.Empty(t, deep)
				return
			}
			require.Len(t, deep, 1)
			assert.Equal(t, tt.wantDeep, deep[0].Level)
		})
	}
}

func TestTrailingStopMeasuresFromHighest(t *testing.T) {
	rule := domain.StopLossRule{
		ID:           7,
		PortfolioID:  1,
		Ticker:       "X",
		BuyPrice:     1000,
		HighestPrice: 1200,
		StopLossPct:  -0.10,
		TrailingStop: true,
		IsActive:     true,
	}
	g := newTestGenerator()

	eval := func(price float64) Outcome {
		return g.Evaluate(Input{
			PortfolioID: 1,
			Rules:       map[string]domain.StopLossRule{"X": rule},
			Positions:   []Position{{Ticker: "X", Bars: bars("X", price, price), Shares: 1, BuyPrice: 1000}},
		})
	}

	out := eval(1090)
	assert.Empty(t, findingsOf(out, domain.AlertStopLoss))
	assert.Empty(t, findingsOf(out, domain.AlertDeepStopLoss))
	assert.Empty(t, out.UpdatedRules)

	out = eval(1070)
	found := findingsOf(out, domain.AlertStopLoss)
	require.Len(t, found, 1)
	assert.Equal(t, domain.LevelWarning, found[0].Level)
	assert.Equal(t, 1200.0, found[0].Detail["reference"])
}

func TestTrailingStopRaisesHighestBeforeEvaluation(t *testing.T) {
	rule := domain.StopLossRule{
		PortfolioID: 1, Ticker: "X", BuyPrice: 1000, HighestPrice: 1100,
		StopLossPct: -0.10, TrailingStop: true, IsActive: true,
	}
	out := newTestGenerator().Evaluate(Input{
		PortfolioID: 1,
		Rules:       map[string]domain.StopLossRule{"X": rule},
		Positions:   []Position{{Ticker: "X", Bars: bars("X", 1200, 1300), Shares: 1, BuyPrice: 1000}},
	})
	require.Len(t, out.UpdatedRules, 1)
	assert.Equal(t, 1300.0, out.UpdatedRules[0].HighestPrice)
	assert.Empty(t, findingsOf(out, domain.AlertStopLoss))
}

func TestInactiveRuleIsEvaluatedButSilent(t *testing.T) {
	rule := domain.StopLossRule{PortfolioID: 1, Ticker: "X", BuyPrice: 1000, StopLossPct: -0.10, IsActive: false}
	out := newTestGenerator().Evaluate(Input{
		PortfolioID: 1,
		Rules:       map[string]domain.StopLossRule{"X": rule},
		Positions:   []Position{{Ticker: "X", Bars: bars("X", 500, 500), Shares: 1, BuyPrice: 1000}},
	})
	assert.True(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Ticker: "X", Type: domain.AlertStopLoss}])
	assert.Empty(t, findingsOf(out, domain.AlertStopLoss))
	assert.Empty(t, findingsOf(out, domain.AlertDeepStopLoss))
}

func TestHealthAlerts(t *testing.T) {
	g := newTestGenerator()

	out := g.Evaluate(Input{PortfolioID: 1, HealthScore: domain.Float(35)})
	require.Len(t, findingsOf(out, domain.AlertHealthDanger), 1)
	assert.Equal(t, domain.LevelCritical, findingsOf(out, domain.AlertHealthDanger)[0].Level)
	assert.Empty(t, findingsOf(out, domain.AlertHealthCaution))
	assert.True(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Type: domain.AlertHealthCaution}])

	out = g.Evaluate(Input{PortfolioID: 1, HealthScore: domain.Float(55)})
	assert.Empty(t, findingsOf(out, domain.AlertHealthDanger))
	require.Len(t, findingsOf(out, domain.AlertHealthCaution), 1)
	assert.Nil(t, findingsOf(out, domain.AlertHealthCaution)[0].Ticker)

	out = g.Evaluate(Input{PortfolioID: 1, HealthScore: domain.Float(70)})
	assert.Empty(t, findingsOf(out, domain.AlertHealthDanger))
	assert.Empty(t, findingsOf(out, domain.AlertHealthCaution))

	out = g.Evaluate(Input{PortfolioID: 1})
	assert.False(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Type: domain.AlertHealthDanger}])
}

func TestConcentrationAlerts(t *testing.T) {
	out := newTestGenerator().Evaluate(Input{
		PortfolioID: 2,
		Weights:     map[string]float64{"A": 0.30, "B": 0.45, "C": 0.25},
		SectorWeights: map[string]float64{
			"tech":   0.55,
			"energy": 0.45,
		},
		Positions: []Position{
			{Ticker: "A", Bars: bars("A", 10, 10), Shares: 1, BuyPrice: 10},
			{Ticker: "B", Bars: bars("B", 10, 10), Shares: 1, BuyPrice: 10},
			{Ticker: "C", Bars: bars("C", 10, 10), Shares: 1, BuyPrice: 10},
		},
	})

	ticker := findingsOf(out, domain.AlertTickerConcentrate)
	require.Len(t, ticker, 1)
	assert.Equal(t, "B", *ticker[0].Ticker)

	sector := findingsOf(out, domain.AlertSectorConcentrate)
	require.Len(t, sector, 1)
	assert.Nil(t, sector[0].Ticker)
	assert.Equal(t, "tech", sector[0].Detail["sector"])
}

func TestIndexCrashUsesWorstIndex(t *testing.T) {
	g := newTestGenerator()
	out := g.Evaluate(Input{
		PortfolioID: 1,
		IndexBars: map[string][]domain.PriceBar{
			"^N225": bars("^N225", 100, 96),
			"^GSPC": bars("^GSPC", 100, 93),
		},
	})
	found := findingsOf(out, domain.AlertIndexCrash)
	require.Len(t, found, 1)
	assert.Equal(t, domain.LevelCritical, found[0].Level)
	assert.Equal(t, "^GSPC", found[0].Detail["index"])

	out = g.Evaluate(Input{
		PortfolioID: 1,
		IndexBars:   map[string][]domain.PriceBar{"^N225": bars("^N225", 100, 98)},
	})
	assert.Empty(t, findingsOf(out, domain.AlertIndexCrash))
	assert.True(t, out.Evaluated[domain.AlertKey{PortfolioID: 1, Type: domain.AlertIndexCrash}])
}

func TestBroadDecline(t *testing.T) {
	g := newTestGenerator()
	positions := []Position{
		{Ticker: "A", Bars: bars("A", 10, 9.9), Shares: 1, BuyPrice: 5},
		{Ticker: "B", Bars: bars("B", 10, 9.8), Shares: 1, BuyPrice: 5},
		{Ticker: "C", Bars: bars("C", 10, 10.5), Shares: 1, BuyPrice: 5},
		{Ticker: "D", Bars: bars("D", 10, 10.1), Shares: 1, BuyPrice: 5},
	}
	out := g.Evaluate(Input{PortfolioID: 1, Positions: positions})
	found := findingsOf(out, domain.AlertBroadDecline)
	require.Len(t, found, 1)
	assert.Equal(t, domain.LevelSevere, found[0].Level)

	positions[1].Bars = bars("B", 10, 10.2)
	out = g.Evaluate(Input{PortfolioID: 1, Positions: positions})
	assert.Empty(t, findingsOf(out, domain.AlertBroadDecline))
}

func TestStaleLoss(t *testing.T) {
	under := func(n int) []float64 {
		closes := []float64{120}
		for i := 0; i < n; i++ {
			closes = append(closes, 95)
		}
		return closes
	}
	g := newTestGenerator()

	out := g.Evaluate(Input{PortfolioID: 1, Positions: []Position{{Ticker: "X", Bars: bars("X", under(30)...), Shares: 1, BuyPrice: 100}}})
	found := findingsOf(out, domain.AlertStaleLoss)
	require.Len(t, found, 1)
	assert.Equal(t, 30, found[0].Detail["days_under_water"])

	out = g.Evaluate(Input{PortfolioID: 1, Positions: []Position{{Ticker: "X", Bars: bars("X", under(29)...), Shares: 1, BuyPrice: 100}}})
	assert.Empty(t, findingsOf(out, domain.AlertStaleLoss))
}

func openAlert(id int64, ticker string, t domain.AlertType, level domain.AlertLevel) domain.Alert {
	a := domain.Alert{ID: id, PortfolioID: 1, Type: t, Level: level, Message: "old", CreatedAt: day0}
	if ticker != "" {
		a.Ticker = &ticker
	}
	return a
}

func TestReconcileCreatesOnce(t *testing.T) {
	now := day0.Add(24 * time.Hour)
	out := Outcome{
		Evaluated: map[domain.AlertKey]bool{{PortfolioID: 1, Ticker: "X", Type: domain.AlertDailyDrop}: true},
		Findings: []Finding{
			{Ticker: tickerPtr("X"), Type: domain.AlertDailyDrop, Level: domain.LevelSevere, Message: "X fell", Action: "check"},
		},
	}

	plan := Reconcile(now, 1, nil, out)
	require.Len(t, plan.Create, 1)
	assert.Equal(t, now, plan.Create[0].CreatedAt)
	assert.Equal(t, "check", plan.Create[0].ActionSuggestion)

	existing := plan.Create[0]
	existing.ID = 11
	plan = Reconcile(now, 1, []domain.Alert{existing}, out)
	assert.True(t, plan.Empty())
}

func TestReconcileEscalatesOnlyUpward(t *testing.T) {
	now := day0.Add(24 * time.Hour)
	key := domain.AlertKey{PortfolioID: 1, Ticker: "X", Type: domain.AlertDailyDrop}
	critical := Outcome{
		Evaluated: map[domain.AlertKey]bool{key: true},
		Findings:  []Finding{{Ticker: tickerPtr("X"), Type: domain.AlertDailyDrop, Level: domain.LevelCritical, Message: "X crashed"}},
	}

	plan := Reconcile(now, 1, []domain.Alert{openAlert(3, "X", domain.AlertDailyDrop, domain.LevelSevere)}, critical)
	require.Len(t, plan.Escalate, 1)
	assert.Equal(t, domain.LevelCritical, plan.Escalate[0].Level)
	assert.Equal(t, "X crashed", plan.Escalate[0].Message)
	assert.Equal(t, int64(3), plan.Escalate[0].ID)
	assert.Empty(t, plan.Create)

	severe := critical
	severe.Findings = []Finding{{Ticker: tickerPtr("X"), Type: domain.AlertDailyDrop, Level: domain.LevelSevere}}
	plan = Reconcile(now, 1, []domain.Alert{openAlert(3, "X", domain.AlertDailyDrop, domain.LevelCritical)}, severe)
	assert.True(t, plan.Empty())
}

func TestReconcileStopLossDeepening(t *testing.T) {
	g := newTestGenerator()
	evaluate := func(price float64) Outcome {
		return g.Evaluate(Input{
			PortfolioID: 1,
			Positions:   []Position{{Ticker: "X", Bars: bars("X", price, price), Shares: 1, BuyPrice: 1000}},
		})
	}
	apply := func(open []domain.Alert, plan Plan, nextID int64) []domain.Alert {
		kept := make([]domain.Alert, 0, len(open))
		for _, a := range open {
			resolved := false
			for _, r := range plan.Resolve {
				if r.ID == a.ID {
					resolved = true
				}
			}
			for _, e := range plan.Escalate {
				if e.ID == a.ID {
					a = e
				}
			}
			if !resolved {
				kept = append(kept, a)
			}
		}
		for i, c := range plan.Create {
			c.ID = nextID + int64(i)
			kept = append(kept, c)
		}
		return kept
	}

	// -11%: the stop line is touched
	plan := Reconcile(day0, 1, nil, evaluate(890))
	require.Len(t, plan.Create, 1)
	assert.Equal(t, domain.AlertStopLoss, plan.Create[0].Type)
	open := apply(nil, plan, 1)

	// -16%: the deep tier opens and the line alert stays open
	plan = Reconcile(day0.Add(24*time.Hour), 1, open, evaluate(840))
	require.Len(t, plan.Create, 1)
	assert.Equal(t, domain.AlertDeepStopLoss, plan.Create[0].Type)
	assert.Equal(t, domain.LevelSevere, plan.Create[0].Level)
	assert.Empty(t, plan.Resolve, "a deepening loss resolves nothing")
	open = apply(open, plan, 2)

	// -21%: the deep alert escalates in place
	plan = Reconcile(day0.Add(48*time.Hour), 1, open, evaluate(790))
	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Resolve)
	require.Len(t, plan.Escalate, 1)
	assert.Equal(t, int64(2), plan.Escalate[0].ID)
	assert.Equal(t, domain.LevelCritical, plan.Escalate[0].Level)
	open = apply(open, plan, 3)

	// -12%: the deep condition clears, the line alert remains
	now := day0.Add(72 * time.Hour)
	plan = Reconcile(now, 1, open, evaluate(880))
	assert.Empty(t, plan.Create)
	require.Len(t, plan.Resolve, 1)
	assert.Equal(t, int64(2), plan.Resolve[0].ID)
	require.NotNil(t, plan.Resolve[0].ResolvedAt)
	assert.Equal(t, now, *plan.Resolve[0].ResolvedAt)
}

func TestReconcileLeavesUnevaluatedAlertsOpen(t *testing.T) {
	open := []domain.Alert{
		openAlert(1, "GAP", domain.AlertDailyDrop, domain.LevelSevere),
		openAlert(2, "", domain.AlertHealthDanger, domain.LevelCritical),
	}
	out := Outcome{Evaluated: map[domain.AlertKey]bool{{PortfolioID: 1, Type: domain.AlertHealthDanger}: true}}

	plan := Reconcile(day0, 1, open, out)
	assert.Empty(t, plan.Create)
	require.Len(t, plan.Resolve, 1)
	assert.Equal(t, int64(2), plan.Resolve[0].ID)
}
