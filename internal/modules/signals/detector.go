// Package signals detects buy-opportunity signals and tracks their validity.
package signals

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/indicators"
)

// Config holds detection thresholds and the validity window
type Config struct {
	Expiry           time.Duration `yaml:"expiry"`
	VolumeMultiplier float64       `yaml:"volume_multiplier"`
	RSIOversold      float64       `yaml:"rsi_oversold"`
	RSIOverbought    float64       `yaml:"rsi_overbought"`
	ValueMaxPER      float64       `yaml:"value_max_per"`
	ValueMaxPBR      float64       `yaml:"value_max_pbr"`
	DividendMinYield float64       `yaml:"dividend_min_yield"`
	MinMomentum      float64       `yaml:"min_momentum"`
}

// DefaultConfig returns the standard detection thresholds
func DefaultConfig() Config {
	return Config{
		Expiry:           7 * 24 * time.Hour,
		VolumeMultiplier: 2,
		RSIOversold:      30,
		RSIOverbought:    70,
		ValueMaxPER:      12,
		ValueMaxPBR:      1.0,
		DividendMinYield: 0.04,
		MinMomentum:      50,
	}
}

// Validate checks the thresholds
func (c Config) Validate() error {
	if c.Expiry <= 0 {
		return &domain.ConfigurationError{Field: "signals.expiry", Reason: "must be positive"}
	}
	if c.VolumeMultiplier <= 1 {
		return &domain.ConfigurationError{Field: "signals.volume_multiplier", Reason: "must exceed 1"}
	}
	if c.RSIOversold <= 0 || c.RSIOversold >= c.RSIOverbought || c.RSIOverbought >= 100 {
		return &domain.ConfigurationError{Field: "signals.rsi", Reason: "need 0 < oversold < overbought < 100"}
	}
	if c.ValueMaxPER <= 0 || c.ValueMaxPBR <= 0 || c.DividendMinYield <= 0 {
		return &domain.ConfigurationError{Field: "signals.fundamentals", Reason: "thresholds must be positive"}
	}
	return nil
}

// Input is everything the detector knows about one ticker on the current pass
type Input struct {
	Snapshot      *indicators.Snapshot
	Fundamentals  *domain.Fundamentals
	Ticker        string
	MomentumScore float64
}

// Candidate is a signal detected on the current bar, before deduplication
type Candidate struct {
	Detail   map[string]interface{}
	Ticker   string
	Type     domain.SignalType
	Priority domain.Priority
	Message  string
}

// Detector evaluates the detection rules
type Detector struct {
	log zerolog.Logger
	cfg Config
}

// NewDetector creates a detector; cfg must already be validated
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	return &Detector{
		cfg: cfg,
		log: log.With().Str("component", "signal_detector").Logger(),
	}
}

// Config returns the detector configuration
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect evaluates every rule on the most recent bar
func (d *Detector) Detect(in Input) []Candidate {
	var out []Candidate
	for _, t := range domain.SignalTypes {
		if c, ok := d.detect(t, in); ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Detector) detect(t domain.SignalType, in Input) (Candidate, bool) {
	switch t {
	case domain.SignalGoldenCross:
		return d.goldenCross(in)
	case domain.SignalVolumeSpike:
		return d.volumeSpike(in)
	case domain.SignalRSIReversal:
		return d.rsiReversal(in)
	case domain.SignalValueOpportunity:
		return d.valueOpportunity(in)
	case domain.SignalDividendChance:
		return d.dividendChance(in)
	}
	return Candidate{}, false
}

func candidate(in Input, t domain.SignalType, msg string, detail map[string]interface{}) Candidate {
	return Candidate{
		Ticker:   in.Ticker,
		Type:     t,
		Priority: t.Priority(),
		Message:  msg,
		Detail:   detail,
	}
}

// crossPair returns fast and slow SMA on the last two bars
func crossPair(snap *indicators.Snapshot) (prevFast, prevSlow, fast, slow float64, ok bool) {
	i := snap.LastIndex()
	var ok1, ok2, ok3, ok4 bool
	prevFast, ok1 = snap.FastSMA.At(i - 1)
	prevSlow, ok2 = snap.SlowSMA.At(i - 1)
	fast, ok3 = snap.FastSMA.At(i)
	slow, ok4 = snap.SlowSMA.At(i)
	return prevFast, prevSlow, fast, slow, ok1 && ok2 && ok3 && ok4
}

func (d *Detector) goldenCross(in Input) (Candidate, bool) {
	if in.Snapshot == nil {
		return Candidate{}, false
	}
	prevFast, prevSlow, fast, slow, ok := crossPair(in.Snapshot)
	if !ok || !(prevFast <= prevSlow && fast > slow) {
		return Candidate{}, false
	}
	return candidate(in, domain.SignalGoldenCross,
		fmt.Sprintf("%s: golden cross, fast MA %.2f crossed above slow MA %.2f", in.Ticker, fast, slow),
		map[string]interface{}{"fast_ma": fast, "slow_ma": slow, "prev_fast_ma": prevFast, "prev_slow_ma": prevSlow},
	), true
}

// volumeSpike compares the current volume with the average of the preceding window
func (d *Detector) volumeSpike(in Input) (Candidate, bool) {
	if in.Snapshot == nil {
		return Candidate{}, false
	}
	i := in.Snapshot.LastIndex()
	avg, ok := in.Snapshot.VolumeSMA.At(i - 1)
	if !ok || avg <= 0 {
		return Candidate{}, false
	}
	current := in.Snapshot.Bars[i].Volume
	ratio := current / avg
	if ratio <= d.cfg.VolumeMultiplier {
		return Candidate{}, false
	}
	return candidate(in, domain.SignalVolumeSpike,
		fmt.Sprintf("%s: volume spike, %.1fx the recent average", in.Ticker, ratio),
		map[string]interface{}{"volume": current, "average_volume": avg, "ratio": ratio},
	), true
}

func (d *Detector) rsiReversal(in Input) (Candidate, bool) {
	if in.Snapshot == nil {
		return Candidate{}, false
	}
	i := in.Snapshot.LastIndex()
	prev, ok1 := in.Snapshot.RSI.At(i - 1)
	cur, ok2 := in.Snapshot.RSI.At(i)
	if !ok1 || !ok2 {
		return Candidate{}, false
	}

	var direction string
	switch {
	case prev <= d.cfg.RSIOversold && cur > d.cfg.RSIOversold:
		direction = directionUp
	case prev >= d.cfg.RSIOverbought && cur < d.cfg.RSIOverbought:
		direction = directionDown
	default:
		return Candidate{}, false
	}
	return candidate(in, domain.SignalRSIReversal,
		fmt.Sprintf("%s: RSI reversal %.1f -> %.1f", in.Ticker, prev, cur),
		map[string]interface{}{"rsi": cur, "prev_rsi": prev, "direction": direction},
	), true
}

const (
	directionUp   = "up"
	directionDown = "down"
)

func (d *Detector) valueHolds(in Input) (holds, known bool) {
	f := in.Fundamentals
	if f == nil || f.PER == nil || f.PBR == nil {
		return false, false
	}
	return *f.PER > 0 && *f.PER <= d.cfg.ValueMaxPER &&
		*f.PBR > 0 && *f.PBR <= d.cfg.ValueMaxPBR &&
		in.MomentumScore >= d.cfg.MinMomentum, true
}

func (d *Detector) valueOpportunity(in Input) (Candidate, bool) {
	if holds, _ := d.valueHolds(in); !holds {
		return Candidate{}, false
	}
	f := in.Fundamentals
	return candidate(in, domain.SignalValueOpportunity,
		fmt.Sprintf("%s: undervalued with PER %.1f and PBR %.2f while momentum holds", in.Ticker, *f.PER, *f.PBR),
		map[string]interface{}{"per": *f.PER, "pbr": *f.PBR, "momentum_score": in.MomentumScore},
	), true
}

func (d *Detector) dividendHolds(in Input) (holds, known bool) {
	f := in.Fundamentals
	if f == nil || f.DividendYield == nil {
		return false, false
	}
	return *f.DividendYield >= d.cfg.DividendMinYield && in.MomentumScore >= d.cfg.MinMomentum, true
}

func (d *Detector) dividendChance(in Input) (Candidate, bool) {
	if holds, _ := d.dividendHolds(in); !holds {
		return Candidate{}, false
	}
	y := *in.Fundamentals.DividendYield
	return candidate(in, domain.SignalDividendChance,
		fmt.Sprintf("%s: dividend yield %.2f%% with stable momentum", in.Ticker, y*100),
		map[string]interface{}{"dividend_yield": y, "momentum_score": in.MomentumScore},
	), true
}

// Reversed reports whether the condition behind a valid signal no longer
// holds on the current pass. known is false when the input cannot tell.
func (d *Detector) Reversed(s domain.Signal, in Input) (reversed, known bool) {
	switch s.Type {
	case domain.SignalGoldenCross:
		if in.Snapshot == nil {
			return false, false
		}
		fast, ok1 := in.Snapshot.FastSMA.Last()
		slow, ok2 := in.Snapshot.SlowSMA.Last()
		if !ok1 || !ok2 {
			return false, false
		}
		return fast < slow, true
	case domain.SignalRSIReversal:
		if in.Snapshot == nil {
			return false, false
		}
		rsi, ok := in.Snapshot.RSI.Last()
		if !ok {
			return false, false
		}
		if dir, _ := s.Detail["direction"].(string); dir == directionDown {
			return rsi >= d.cfg.RSIOverbought, true
		}
		return rsi <= d.cfg.RSIOversold, true
	case domain.SignalValueOpportunity:
		holds, known := d.valueHolds(in)
		return known && !holds, known
	case domain.SignalDividendChance:
		holds, known := d.dividendHolds(in)
		return known && !holds, known
	case domain.SignalVolumeSpike:
		return false, true
	}
	return false, false
}
