// Package risk computes portfolio risk metrics from holdings and daily price history.
package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/pkg/formulas"
)

// MinVaRReturns is the smallest return sample VaR is estimated from
const MinVaRReturns = 10

// Input is the full holdings set of one portfolio plus its price history
type Input struct {
	Date        time.Time
	Prices      map[string][]domain.PriceBar
	Holdings    []domain.Holding
	PortfolioID int64
}

// Result carries the stored snapshot plus the intermediate figures the
// health scorer and alert generator reuse
type Result struct {
	Metrics          domain.RiskMetrics
	Weights          map[string]float64
	SectorWeights    map[string]float64
	LatestClose      map[string]float64
	TickerVolatility map[string]float64
	PnL              map[string]float64
	Gaps             []error
	ValueSeries      []float64
	TotalValue       float64
	LossShare        float64
	LossCount        int
	PricedHoldings   int
}

// Calculator computes risk metrics
type Calculator struct {
	log          zerolog.Logger
	riskFreeRate float64
}

// NewCalculator creates a calculator with an annual risk-free rate (0 by default)
func NewCalculator(riskFreeRate float64, log zerolog.Logger) *Calculator {
	return &Calculator{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "risk_calculator").Logger(),
	}
}

// Calculate computes the risk snapshot for one portfolio.
// Holdings without any price history are skipped and reported in Result.Gaps.
func (c *Calculator) Calculate(in Input) *Result {
	res := &Result{
		Weights:          make(map[string]float64),
		SectorWeights:    make(map[string]float64),
		LatestClose:      make(map[string]float64),
		TickerVolatility: make(map[string]float64),
		PnL:              make(map[string]float64),
	}
	res.Metrics.PortfolioID = in.PortfolioID
	res.Metrics.Date = in.Date

	priced := make([]domain.Holding, 0, len(in.Holdings))
	for _, h := range in.Holdings {
		bars := in.Prices[h.Ticker]
		if len(bars) == 0 {
			res.Gaps = append(res.Gaps, &domain.DataGapError{Ticker: h.Ticker, Reason: "no price history"})
			continue
		}
		priced = append(priced, h)
		res.LatestClose[h.Ticker] = bars[len(bars)-1].Close
	}
	res.PricedHoldings = len(priced)
	if len(priced) == 0 {
		return res
	}

	// Position values at the latest available close
	positionValue := make(map[string]float64)
	sectorValue := make(map[string]float64)
	for _, h := range priced {
		v := h.Shares * res.LatestClose[h.Ticker]
		positionValue[h.Ticker] += v
		sectorValue[sectorOf(h)] += v
		res.TotalValue += v

		pnl := (res.LatestClose[h.Ticker] - h.BuyPrice) / h.BuyPrice
		res.PnL[h.Ticker] = pnl
		if pnl < 0 {
			res.LossCount++
		}
	}
	res.LossShare = float64(res.LossCount) / float64(len(priced))

	values := make([]float64, 0, len(positionValue))
	for _, ticker := range sortedKeys(positionValue) {
		values = append(values, positionValue[ticker])
		if res.TotalValue > 0 {
			res.Weights[ticker] = positionValue[ticker] / res.TotalValue
		}
	}
	for sector, v := range sectorValue {
		if res.TotalValue > 0 {
			res.SectorWeights[sector] = v / res.TotalValue
		}
	}
	res.Metrics.HHI = formulas.HHI(values)

	dates, closes := alignCloses(priced, in.Prices)
	res.ValueSeries = valueSeries(priced, dates, closes)

	logReturns := formulas.LogReturns(res.ValueSeries)
	res.Metrics.Volatility = formulas.AnnualizedVolatility(logReturns)
	res.Metrics.MaxDrawdown = formulas.MaxDrawdown(res.ValueSeries)
	res.Metrics.SharpeRatio = c.sharpe(logReturns, res.Metrics.Volatility)
	res.Metrics.Correlation = averageCorrelation(closes)
	res.Metrics.VaR95 = valueAtRisk(formulas.SimpleReturns(res.ValueSeries), res.TotalValue)

	for ticker, series := range closes {
		if v := formulas.AnnualizedVolatility(formulas.LogReturns(series)); v != nil {
			res.TickerVolatility[ticker] = *v
		}
	}

	c.log.Debug().
		Int64("portfolio_id", in.PortfolioID).
		Int("holdings", len(priced)).
		Int("common_dates", len(dates)).
		Float64("total_value", res.TotalValue).
		Msg("Risk metrics calculated")

	return res
}

func (c *Calculator) sharpe(logReturns []float64, volatility *float64) *float64 {
	if volatility == nil || *volatility == 0 || len(logReturns) == 0 {
		return nil
	}
	annualReturn := formulas.Mean(logReturns) * formulas.TradingDaysPerYear
	s := (annualReturn - c.riskFreeRate) / *volatility
	return &s
}

// alignCloses returns the dates every priced ticker has a bar for, ascending,
// and each ticker's closes on exactly those dates
func alignCloses(holdings []domain.Holding, prices map[string][]domain.PriceBar) ([]time.Time, map[string][]float64) {
	byTicker := make(map[string]map[time.Time]float64)
	for _, h := range holdings {
		if _, seen := byTicker[h.Ticker]; seen {
			continue
		}
		m := make(map[time.Time]float64, len(prices[h.Ticker]))
		for _, b := range prices[h.Ticker] {
			m[dayOf(b.Date)] = b.Close
		}
		byTicker[h.Ticker] = m
	}

	var dates []time.Time
	first := true
	for _, m := range byTicker {
		if first {
			for d := range m {
				dates = append(dates, d)
			}
			first = false
			continue
		}
		kept := dates[:0]
		for _, d := range dates {
			if _, ok := m[d]; ok {
				kept = append(kept, d)
			}
		}
		dates = kept
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	closes := make(map[string][]float64, len(byTicker))
	for ticker, m := range byTicker {
		series := make([]float64, len(dates))
		for i, d := range dates {
			series[i] = m[d]
		}
		closes[ticker] = series
	}
	return dates, closes
}

func valueSeries(holdings []domain.Holding, dates []time.Time, closes map[string][]float64) []float64 {
	series := make([]float64, len(dates))
	for _, h := range holdings {
		c := closes[h.Ticker]
		for i := range series {
			series[i] += h.Shares * c[i]
		}
	}
	return series
}

// averageCorrelation is the mean pairwise Pearson correlation of daily log
// returns; pairs without variance are skipped
func averageCorrelation(closes map[string][]float64) *float64 {
	if len(closes) < 2 {
		return nil
	}
	tickers := sortedKeys(closes)
	returns := make([][]float64, len(tickers))
	for i, t := range tickers {
		returns[i] = formulas.LogReturns(closes[t])
	}

	sum := 0.0
	pairs := 0
	for i := 0; i < len(returns); i++ {
		for j := i + 1; j < len(returns); j++ {
			if c, ok := formulas.Correlation(returns[i], returns[j]); ok {
				sum += c
				pairs++
			}
		}
	}
	if pairs == 0 {
		return nil
	}
	avg := sum / float64(pairs)
	return &avg
}

// valueAtRisk scales the historical 5th percentile daily return to the
// current portfolio value; never positive
func valueAtRisk(returns []float64, totalValue float64) *float64 {
	if len(returns) < MinVaRReturns {
		return nil
	}
	q := formulas.Quantile(0.05, returns)
	v := math.Min(0, q) * totalValue
	if v == 0 {
		v = 0 // normalise -0
	}
	return &v
}

func sectorOf(h domain.Holding) string {
	if h.Sector == "" {
		return "unknown"
	}
	return h.Sector
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
