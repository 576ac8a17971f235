// Package screening ranks candidate tickers by a composite value, momentum,
// growth and safety score.
package screening

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/modules/indicators"
	"github.com/aristath/watchtower/pkg/formulas"
)

// Weights of the four sub-scores
type Weights struct {
	Value    float64 `yaml:"value"`
	Momentum float64 `yaml:"momentum"`
	Growth   float64 `yaml:"growth"`
	Safety   float64 `yaml:"safety"`
}

// Filters exclude tickers before ranking. Nil means no filter.
type Filters struct {
	MinPER           *float64 `yaml:"min_per"`
	MaxPER           *float64 `yaml:"max_per"`
	MinDividendYield *float64 `yaml:"min_dividend_yield"`
}

// Config holds screening weights and scoring bands
type Config struct {
	Filters         Filters       `yaml:"filters"`
	Weights         Weights       `yaml:"weights"`
	PER             formulas.Band `yaml:"per"`
	PBR             formulas.Band `yaml:"pbr"`
	DividendYield   formulas.Band `yaml:"dividend_yield"`
	MACDDiff        formulas.Band `yaml:"macd_diff"`
	MADeviation     formulas.Band `yaml:"ma_deviation"`
	Growth          formulas.Band `yaml:"growth"`
	EquityRatio     formulas.Band `yaml:"equity_ratio"`
	PayoutHealthy   float64       `yaml:"payout_healthy"`
	PayoutMax       float64       `yaml:"payout_max"`
	MinSectorPeers  int           `yaml:"min_sector_peers"`
	MinMomentumBars int           `yaml:"min_momentum_bars"`
	TopN            int           `yaml:"top_n"`
}

// DefaultConfig returns the standard screening bands
func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Value: 0.40, Momentum: 0.30, Growth: 0.20, Safety: 0.10},
		PER:             formulas.Band{Best: 5, Worst: 25},
		PBR:             formulas.Band{Best: 0.5, Worst: 3},
		DividendYield:   formulas.Band{Best: 0.05, Worst: 0},
		MACDDiff:        formulas.Band{Best: 2, Worst: -2},
		MADeviation:     formulas.Band{Best: -0.10, Worst: 0.10},
		Growth:          formulas.Band{Best: 0.30, Worst: 0},
		EquityRatio:     formulas.Band{Best: 0.60, Worst: 0.20},
		PayoutHealthy:   0.60,
		PayoutMax:       0.80,
		MinSectorPeers:  3,
		MinMomentumBars: 20,
		TopN:            5,
	}
}

// Validate checks weights and counts
func (c Config) Validate() error {
	w := c.Weights
	if w.Value < 0 || w.Momentum < 0 || w.Growth < 0 || w.Safety < 0 {
		return &domain.ConfigurationError{Field: "screening.weights", Reason: "weights must be non-negative"}
	}
	if sum := w.Value + w.Momentum + w.Growth + w.Safety; math.Abs(sum-1) > 1e-9 {
		return &domain.ConfigurationError{Field: "screening.weights", Reason: fmt.Sprintf("weights sum to %.4f, want 1", sum)}
	}
	if c.TopN <= 0 {
		return &domain.ConfigurationError{Field: "screening.top_n", Reason: "must be positive"}
	}
	if c.MinSectorPeers < 2 {
		return &domain.ConfigurationError{Field: "screening.min_sector_peers", Reason: "must be at least 2"}
	}
	if c.PayoutHealthy <= 0 || c.PayoutMax <= c.PayoutHealthy {
		return &domain.ConfigurationError{Field: "screening.payout", Reason: "need 0 < payout_healthy < payout_max"}
	}
	if f := c.Filters; f.MinPER != nil && f.MaxPER != nil && *f.MinPER > *f.MaxPER {
		return &domain.ConfigurationError{Field: "screening.filters", Reason: "min_per exceeds max_per"}
	}
	return nil
}

// Candidate is one ticker's screening input
type Candidate struct {
	Snapshot     *indicators.Snapshot
	Fundamentals domain.Fundamentals
}

// Scorer computes screening scores
type Scorer struct {
	log zerolog.Logger
	cfg Config
}

// NewScorer creates a scorer; cfg must already be validated
func NewScorer(cfg Config, log zerolog.Logger) *Scorer {
	return &Scorer{
		cfg: cfg,
		log: log.With().Str("component", "screening_scorer").Logger(),
	}
}

// Config returns the scorer configuration
func (s *Scorer) Config() Config {
	return s.cfg
}

// ScoreAll scores every candidate that passes the filters. PER is scored
// against sector peers when the sector has enough priced peers.
func (s *Scorer) ScoreAll(date time.Time, candidates []Candidate) []domain.ScreeningResult {
	peers := make(map[string][]float64)
	for _, c := range candidates {
		if per := c.Fundamentals.PER; per != nil && *per > 0 {
			peers[c.Fundamentals.Sector] = append(peers[c.Fundamentals.Sector], *per)
		}
	}

	results := make([]domain.ScreeningResult, 0, len(candidates))
	for _, c := range candidates {
		f := c.Fundamentals
		if !s.passes(f) {
			continue
		}

		r := domain.ScreeningResult{
			Date:          date,
			Ticker:        f.Ticker,
			Name:          f.Name,
			Sector:        f.Sector,
			PER:           f.PER,
			PBR:           f.PBR,
			DividendYield: f.DividendYield,
		}
		r.ValueScore = s.valueScore(f, peers[f.Sector])
		r.MomentumScore = s.Momentum(c.Snapshot)
		r.GrowthScore = s.growthScore(f)
		r.SafetyScore = s.safetyScore(f)
		r.Score = s.cfg.Weights.Value*r.ValueScore +
			s.cfg.Weights.Momentum*r.MomentumScore +
			s.cfg.Weights.Growth*r.GrowthScore +
			s.cfg.Weights.Safety*r.SafetyScore
		results = append(results, r)
	}

	s.log.Debug().
		Int("candidates", len(candidates)).
		Int("scored", len(results)).
		Msg("Screening scores computed")

	return results
}

// Rank orders results by score, then value score, then ticker and keeps the top n
func Rank(results []domain.ScreeningResult, n int) []domain.ScreeningResult {
	ranked := make([]domain.ScreeningResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ValueScore != b.ValueScore {
			return a.ValueScore > b.ValueScore
		}
		return a.Ticker < b.Ticker
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

func (s *Scorer) passes(f domain.Fundamentals) bool {
	flt := s.cfg.Filters
	if flt.MinPER != nil && (f.PER == nil || *f.PER < *flt.MinPER) {
		return false
	}
	if flt.MaxPER != nil && (f.PER == nil || *f.PER > *flt.MaxPER) {
		return false
	}
	if flt.MinDividendYield != nil && (f.DividendYield == nil || *f.DividendYield < *flt.MinDividendYield) {
		return false
	}
	return true
}

func (s *Scorer) valueScore(f domain.Fundamentals, sectorPERs []float64) float64 {
	var parts []float64
	if f.PER != nil && *f.PER > 0 {
		parts = append(parts, s.perScore(*f.PER, sectorPERs))
	}
	if f.PBR != nil && *f.PBR > 0 {
		parts = append(parts, s.cfg.PBR.Score(*f.PBR))
	}
	if f.DividendYield != nil {
		parts = append(parts, s.cfg.DividendYield.Score(*f.DividendYield))
	}
	if len(parts) == 0 {
		return 0
	}
	return formulas.Mean(parts)
}

// perScore ranks PER within its sector: the cheapest peer scores 100 and
// the most expensive 0. Small sectors fall back to the absolute band.
func (s *Scorer) perScore(per float64, sectorPERs []float64) float64 {
	if len(sectorPERs) < s.cfg.MinSectorPeers {
		return s.cfg.PER.Score(per)
	}
	lower := 0
	for _, p := range sectorPERs {
		if p < per {
			lower++
		}
	}
	rank := float64(lower) / float64(len(sectorPERs)-1)
	return formulas.Clamp(100*(1-rank), 0, 100)
}

// Momentum scores the technical trend from RSI, MACD and the distance to the
// slow moving average. Fewer than MinMomentumBars bars score 0.
func (s *Scorer) Momentum(snap *indicators.Snapshot) float64 {
	if snap == nil || len(snap.Bars) < s.cfg.MinMomentumBars {
		return 0
	}

	var parts []float64
	if rsi, ok := snap.RSI.Last(); ok {
		parts = append(parts, rsiScore(rsi))
	}
	line, okLine := snap.MACD.Line.Last()
	signal, okSignal := snap.MACD.Signal.Last()
	if okLine && okSignal {
		parts = append(parts, s.cfg.MACDDiff.Score(line-signal))
	}
	if ma, ok := snap.SlowSMA.Last(); ok && ma > 0 {
		last := snap.Bars[len(snap.Bars)-1].Close
		parts = append(parts, s.cfg.MADeviation.Score((last-ma)/ma))
	}
	if len(parts) == 0 {
		return 0
	}
	return formulas.Mean(parts)
}

// rsiScore favours oversold readings: 30 or below scores 100, 50 scores 50, 100 scores 0
func rsiScore(rsi float64) float64 {
	switch {
	case rsi <= 30:
		return 100
	case rsi <= 50:
		return formulas.Scale(rsi, 70, 30)
	default:
		return formulas.Scale(rsi, 100, 0)
	}
}

func (s *Scorer) growthScore(f domain.Fundamentals) float64 {
	var parts []float64
	if f.RevenueGrowth != nil {
		parts = append(parts, s.cfg.Growth.Score(*f.RevenueGrowth))
	}
	if f.EarningsGrowth != nil {
		parts = append(parts, s.cfg.Growth.Score(*f.EarningsGrowth))
	}
	if len(parts) == 0 {
		return 0
	}
	return formulas.Mean(parts)
}

func (s *Scorer) safetyScore(f domain.Fundamentals) float64 {
	var parts []float64
	if f.DebtToEquity != nil && *f.DebtToEquity >= 0 {
		equityRatio := 1 / (1 + *f.DebtToEquity)
		parts = append(parts, s.cfg.EquityRatio.Score(equityRatio))
	}
	if f.PayoutRatio != nil && *f.PayoutRatio >= 0 {
		p := *f.PayoutRatio
		if p <= s.cfg.PayoutHealthy {
			parts = append(parts, formulas.Scale(p, 0, s.cfg.PayoutHealthy))
		} else {
			parts = append(parts, formulas.Scale(p, s.cfg.PayoutMax, s.cfg.PayoutHealthy))
		}
	}
	if len(parts) == 0 {
		return 50
	}
	return formulas.Mean(parts)
}
