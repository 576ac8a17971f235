package indicators

import (
	"fmt"

	"github.com/aristath/watchtower/internal/domain"
)

// Params configures every indicator window used by a daily pass
type Params struct {
	FastSMA         int     `yaml:"fast_sma"`
	SlowSMA         int     `yaml:"slow_sma"`
	TrendSMA        int     `yaml:"trend_sma"`
	RSIPeriod       int     `yaml:"rsi_period"`
	MACDFast        int     `yaml:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal"`
	BollingerWindow int     `yaml:"bollinger_window"`
	BollingerK      float64 `yaml:"bollinger_k"`
	VolumeWindow    int     `yaml:"volume_window"`
}

// DefaultParams returns the standard daily windows
func DefaultParams() Params {
	return Params{
		FastSMA:         5,
		SlowSMA:         20,
		TrendSMA:        60,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerWindow: 20,
		BollingerK:      2,
		VolumeWindow:    20,
	}
}

// Validate rejects non-positive windows and inverted SMA/MACD pairs
func (p Params) Validate() error {
	windows := []struct {
		field string
		value int
	}{
		{"fast_sma", p.FastSMA},
		{"slow_sma", p.SlowSMA},
		{"trend_sma", p.TrendSMA},
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_signal", p.MACDSignal},
		{"bollinger_window", p.BollingerWindow},
		{"volume_window", p.VolumeWindow},
	}
	for _, w := range windows {
		if err := checkWindow(w.field, w.value); err != nil {
			return err
		}
	}
	if p.FastSMA >= p.SlowSMA {
		return &domain.ConfigurationError{
			Field:  "fast_sma",
			Reason: fmt.Sprintf("fast window %d must be shorter than slow window %d", p.FastSMA, p.SlowSMA),
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return &domain.ConfigurationError{Field: "macd_fast", Reason: "must be shorter than macd_slow"}
	}
	if p.BollingerK <= 0 {
		return &domain.ConfigurationError{Field: "bollinger_k", Reason: "must be positive"}
	}
	return nil
}

// Snapshot bundles every indicator computed for one ticker
type Snapshot struct {
	Ticker    string
	Bars      []domain.PriceBar
	FastSMA   Series
	SlowSMA   Series
	TrendSMA  Series
	EMA       Series
	RSI       Series
	MACD      MACDResult
	Bollinger BollingerResult
	VolumeSMA Series
}

// Compute runs all indicators over bars (ascending by date)
func Compute(ticker string, bars []domain.PriceBar, p Params) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	snap := &Snapshot{Ticker: ticker, Bars: bars}
	var err error
	if snap.FastSMA, err = SMA(bars, p.FastSMA); err != nil {
		return nil, err
	}
	if snap.SlowSMA, err = SMA(bars, p.SlowSMA); err != nil {
		return nil, err
	}
	if snap.TrendSMA, err = SMA(bars, p.TrendSMA); err != nil {
		return nil, err
	}
	if snap.EMA, err = EMA(bars, p.SlowSMA); err != nil {
		return nil, err
	}
	if snap.RSI, err = RSI(bars, p.RSIPeriod); err != nil {
		return nil, err
	}
	if snap.MACD, err = MACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal); err != nil {
		return nil, err
	}
	if snap.Bollinger, err = Bollinger(bars, p.BollingerWindow, p.BollingerK); err != nil {
		return nil, err
	}
	if snap.VolumeSMA, err = VolumeSMA(bars, p.VolumeWindow); err != nil {
		return nil, err
	}
	return snap, nil
}

// LastIndex returns the index of the most recent bar, or -1 when empty
func (s *Snapshot) LastIndex() int {
	return len(s.Bars) - 1
}
