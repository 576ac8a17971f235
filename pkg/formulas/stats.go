// Package formulas provides the numeric building blocks shared by the scorers.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualises daily statistics
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: sample std dev of daily returns × sqrt(252)
func AnnualizedVolatility(dailyReturns []float64) *float64 {
	if len(dailyReturns) < 2 {
		return nil
	}
	v := StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
	return &v
}

// SimpleReturns converts prices to percentage returns
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// LogReturns converts prices to log returns ln(P[i+1]/P[i]).
// Non-positive prices yield a zero return for that step.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			returns[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}

	return returns
}

// Correlation calculates the Pearson correlation coefficient between two datasets.
// Returns false when either side has zero variance or the lengths differ.
func Correlation(x, y []float64) (float64, bool) {
	if len(x) < 2 || len(x) != len(y) {
		return 0, false
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return 0, false
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0, false
	}
	return c, true
}

// Quantile returns the empirical p-quantile of data (p in [0,1])
func Quantile(p float64, data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// HHI returns the Herfindahl-Hirschman index of the given position values.
// Values are normalised to weights first; a zero total yields 0.
func HHI(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return 0
	}
	hhi := 0.0
	for _, v := range values {
		w := v / total
		hhi += w * w
	}
	return hhi
}
