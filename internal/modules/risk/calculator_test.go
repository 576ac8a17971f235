package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/domain"
)

var day0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func bars(ticker string, closes ...float64) []domain.PriceBar {
	out := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = domain.PriceBar{Ticker: ticker, Date: day0.AddDate(0, 0, i), Close: c, Volume: 100}
	}
	return out
}

func holding(ticker, sector string, shares, buy float64) domain.Holding {
	return domain.Holding{Ticker: ticker, Sector: sector, Shares: shares, BuyPrice: buy, PortfolioID: 1}
}

func newCalc() *Calculator {
	return NewCalculator(0, zerolog.Nop())
}

func TestCalculateSingleHolding(t *testing.T) {
	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Date:        day0,
		Holdings:    []domain.Holding{holding("AAA", "tech", 10, 100)},
		Prices:      map[string][]domain.PriceBar{"AAA": bars("AAA", 100, 110, 99, 120)},
	})

	assert.Equal(t, 1.0, res.Metrics.HHI)
	assert.Nil(t, res.Metrics.Correlation, "single holding has no pairs")
	require.NotNil(t, res.Metrics.Volatility)
	assert.Greater(t, *res.Metrics.Volatility, 0.0)
	require.NotNil(t, res.Metrics.MaxDrawdown)
	assert.InDelta(t, -0.1, *res.Metrics.MaxDrawdown, 1e-12)
	assert.Nil(t, res.Metrics.VaR95, "fewer than 10 returns")
	assert.InDelta(t, 1200.0, res.TotalValue, 1e-9)
}

func TestCalculateEqualWeightsHHI(t *testing.T) {
	tests := []struct {
		name    string
		tickers []string
		want    float64
	}{
		{"two", []string{"A", "B"}, 0.5},
		{"four", []string{"A", "B", "C", "D"}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{PortfolioID: 1, Prices: map[string][]domain.PriceBar{}}
			for _, tk := range tt.tickers {
				in.Holdings = append(in.Holdings, holding(tk, tk, 4, 50))
				in.Prices[tk] = bars(tk, 50, 50)
			}
			res := newCalc().Calculate(in)
			assert.Equal(t, tt.want, res.Metrics.HHI)
		})
	}

	in := Input{PortfolioID: 1, Prices: map[string][]domain.PriceBar{}}
	for _, tk := range []string{"A", "B", "C"} {
		in.Holdings = append(in.Holdings, holding(tk, "x", 3, 10))
		in.Prices[tk] = bars(tk, 10, 10)
	}
	assert.InDelta(t, 1.0/3.0, newCalc().Calculate(in).Metrics.HHI, 1e-12)
}

func TestCalculateFlatPrices(t *testing.T) {
	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings:    []domain.Holding{holding("AAA", "tech", 10, 100)},
		Prices:      map[string][]domain.PriceBar{"AAA": bars("AAA", 100, 100, 100, 100)},
	})

	require.NotNil(t, res.Metrics.Volatility)
	assert.Equal(t, 0.0, *res.Metrics.Volatility)
	assert.Nil(t, res.Metrics.SharpeRatio, "sharpe undefined at zero volatility")
	require.NotNil(t, res.Metrics.MaxDrawdown)
	assert.Equal(t, 0.0, *res.Metrics.MaxDrawdown)
}

func TestCalculateInsufficientHistory(t *testing.T) {
	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings:    []domain.Holding{holding("AAA", "tech", 10, 100)},
		Prices:      map[string][]domain.PriceBar{"AAA": bars("AAA", 100)},
	})

	assert.Nil(t, res.Metrics.Volatility)
	assert.Nil(t, res.Metrics.MaxDrawdown)
	assert.Nil(t, res.Metrics.SharpeRatio)
	assert.Nil(t, res.Metrics.VaR95)
}

func TestCalculateCorrelationAndAlignment(t *testing.T) {
	a := bars("A", 10, 11, 12, 11, 13, 14)
	// B is missing the first date; only the five common dates are used
	b := bars("B", 20, 22, 24, 22, 26, 28)[1:]

	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings:    []domain.Holding{holding("A", "tech", 1, 10), holding("B", "energy", 1, 20)},
		Prices:      map[string][]domain.PriceBar{"A": a, "B": b},
	})

	assert.Len(t, res.ValueSeries, 5)
	require.NotNil(t, res.Metrics.Correlation)
	assert.InDelta(t, 1.0, *res.Metrics.Correlation, 1e-9)
	assert.InDelta(t, 14.0/42.0, res.SectorWeights["tech"], 1e-12)
}

func TestCalculateValueAtRisk(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 95}
	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings:    []domain.Holding{holding("AAA", "tech", 10, 90)},
		Prices:      map[string][]domain.PriceBar{"AAA": bars("AAA", closes...)},
	})

	require.NotNil(t, res.Metrics.VaR95)
	assert.InDelta(t, -0.05*950, *res.Metrics.VaR95, 1e-9)
	assert.LessOrEqual(t, *res.Metrics.VaR95, 0.0)

	rising := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	res = newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings:    []domain.Holding{holding("AAA", "tech", 10, 90)},
		Prices:      map[string][]domain.PriceBar{"AAA": bars("AAA", rising...)},
	})
	require.NotNil(t, res.Metrics.VaR95)
	assert.Equal(t, 0.0, *res.Metrics.VaR95, "capped at zero when every return is a gain")
}

func TestCalculateGapsAndLossShare(t *testing.T) {
	res := newCalc().Calculate(Input{
		PortfolioID: 1,
		Holdings: []domain.Holding{
			holding("UP", "tech", 1, 100),
			holding("DOWN", "tech", 1, 100),
			holding("NODATA", "tech", 1, 100),
		},
		Prices: map[string][]domain.PriceBar{
			"UP":   bars("UP", 100, 120),
			"DOWN": bars("DOWN", 100, 80),
		},
	})

	require.Len(t, res.Gaps, 1)
	assert.True(t, domain.IsDataGap(res.Gaps[0]))
	assert.Equal(t, 2, res.PricedHoldings)
	assert.Equal(t, 1, res.LossCount)
	assert.Equal(t, 0.5, res.LossShare)
	assert.InDelta(t, -0.2, res.PnL["DOWN"], 1e-12)
}

func TestCalculateEmptyPortfolio(t *testing.T) {
	res := newCalc().Calculate(Input{PortfolioID: 7})
	assert.Equal(t, 0.0, res.Metrics.HHI)
	assert.Zero(t, res.PricedHoldings)
	assert.Nil(t, res.Metrics.Volatility)
	assert.Equal(t, int64(7), res.Metrics.PortfolioID)
}
