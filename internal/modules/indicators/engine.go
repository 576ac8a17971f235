package indicators

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/watchtower/internal/domain"
)

// SMA returns the simple moving average of closes over window bars
func SMA(bars []domain.PriceBar, window int) (Series, error) {
	if err := checkWindow("sma_window", window); err != nil {
		return Series{}, err
	}
	return smaOf(barDates(bars), Closes(bars), window), nil
}

// VolumeSMA returns the simple moving average of volume over window bars
func VolumeSMA(bars []domain.PriceBar, window int) (Series, error) {
	if err := checkWindow("volume_window", window); err != nil {
		return Series{}, err
	}
	return smaOf(barDates(bars), Volumes(bars), window), nil
}

func smaOf(dates []time.Time, values []float64, window int) Series {
	if len(values) < window {
		return undefinedSeries(dates)
	}
	return newSeries(dates, talib.Sma(values, window), window-1)
}

// EMA returns the exponential moving average of closes, alpha = 2/(window+1),
// seeded with the simple average of the first window closes
func EMA(bars []domain.PriceBar, window int) (Series, error) {
	if err := checkWindow("ema_window", window); err != nil {
		return Series{}, err
	}
	return emaOf(barDates(bars), Closes(bars), window), nil
}

func emaOf(dates []time.Time, values []float64, window int) Series {
	if len(values) < window {
		return undefinedSeries(dates)
	}
	return newSeries(dates, talib.Ema(values, window), window-1)
}

// RSI returns the Wilder-smoothed relative strength index.
// The first period bars are undefined. A zero average loss yields 100.
func RSI(bars []domain.PriceBar, period int) (Series, error) {
	if err := checkWindow("rsi_period", period); err != nil {
		return Series{}, err
	}
	dates := barDates(bars)
	closes := Closes(bars)
	if len(closes) <= period {
		return undefinedSeries(dates), nil
	}

	out := make([]float64, len(closes))
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return newSeries(dates, out, period), nil
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the three MACD series
type MACDResult struct {
	Line      Series
	Signal    Series
	Histogram Series
}

// MACD returns EMA(fast) - EMA(slow), its signal EMA and the histogram
func MACD(bars []domain.PriceBar, fast, slow, signal int) (MACDResult, error) {
	if err := checkWindow("macd_fast", fast); err != nil {
		return MACDResult{}, err
	}
	if err := checkWindow("macd_slow", slow); err != nil {
		return MACDResult{}, err
	}
	if err := checkWindow("macd_signal", signal); err != nil {
		return MACDResult{}, err
	}
	if fast >= slow {
		return MACDResult{}, &domain.ConfigurationError{
			Field:  "macd_fast",
			Reason: fmt.Sprintf("fast window %d must be shorter than slow window %d", fast, slow),
		}
	}

	dates := barDates(bars)
	closes := Closes(bars)
	if len(closes) < slow {
		return MACDResult{
			Line:      undefinedSeries(dates),
			Signal:    undefinedSeries(dates),
			Histogram: undefinedSeries(dates),
		}, nil
	}

	fastEMA := talib.Ema(closes, fast)
	slowEMA := talib.Ema(closes, slow)
	start := slow - 1

	line := make([]float64, len(closes))
	for i := start; i < len(closes); i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	sig := make([]float64, len(closes))
	hist := make([]float64, len(closes))
	signalStart := start + signal - 1
	if len(closes)-start >= signal {
		smoothed := talib.Ema(line[start:], signal)
		for i := signalStart; i < len(closes); i++ {
			sig[i] = smoothed[i-start]
			hist[i] = line[i] - sig[i]
		}
	} else {
		signalStart = len(closes)
	}

	return MACDResult{
		Line:      newSeries(dates, line, start),
		Signal:    newSeries(dates, sig, signalStart),
		Histogram: newSeries(dates, hist, signalStart),
	}, nil
}

// BollingerResult holds the band series
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// Bollinger returns SMA(window) ± k standard deviations (population)
func Bollinger(bars []domain.PriceBar, window int, k float64) (BollingerResult, error) {
	if err := checkWindow("bollinger_window", window); err != nil {
		return BollingerResult{}, err
	}
	if k <= 0 {
		return BollingerResult{}, &domain.ConfigurationError{Field: "bollinger_k", Reason: "must be positive"}
	}

	dates := barDates(bars)
	closes := Closes(bars)
	if len(closes) < window {
		return BollingerResult{
			Upper:  undefinedSeries(dates),
			Middle: undefinedSeries(dates),
			Lower:  undefinedSeries(dates),
		}, nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, window, k, k, 0)
	return BollingerResult{
		Upper:  newSeries(dates, upper, window-1),
		Middle: newSeries(dates, middle, window-1),
		Lower:  newSeries(dates, lower, window-1),
	}, nil
}

func checkWindow(field string, window int) error {
	if window <= 0 {
		return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf("window must be positive, got %d", window)}
	}
	return nil
}
