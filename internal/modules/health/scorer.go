// Package health turns a portfolio's risk metrics into a 0-100 health score.
package health

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/pkg/formulas"
)

// Term identifies one weighted component of the health score
type Term string

const (
	TermDiversification Term = "diversification"
	TermVolatility      Term = "volatility"
	TermDrawdown        Term = "drawdown"
	TermCorrelation     Term = "correlation"
	TermUnrealizedLoss  Term = "unrealized_loss"
)

// Terms lists the score components in declared order; ties on the lowest
// term resolve to the earliest entry
var Terms = []Term{TermDiversification, TermVolatility, TermDrawdown, TermCorrelation, TermUnrealizedLoss}

// Level classifies a health score
type Level string

const (
	LevelHealthy Level = "healthy"
	LevelCaution Level = "caution"
	LevelDanger  Level = "danger"
)

// NeutralScore is used for a term whose metric is undefined
const NeutralScore = 50.0

// Band is the pair of metric values scoring 100 (Best) and 0 (Worst)
type Band = formulas.Band

// Config holds term weights, thresholds and level cut-offs
type Config struct {
	Weights        map[Term]float64 `yaml:"weights"`
	HHI            Band             `yaml:"hhi"`
	Volatility     Band             `yaml:"volatility"`
	Drawdown       Band             `yaml:"drawdown"`
	Correlation    Band             `yaml:"correlation"`
	UnrealizedLoss Band             `yaml:"unrealized_loss"`
	HealthyMin     float64          `yaml:"healthy_min"`
	CautionMin     float64          `yaml:"caution_min"`
}

// DefaultConfig returns the standard weights and thresholds
func DefaultConfig() Config {
	return Config{
		Weights: map[Term]float64{
			TermDiversification: 0.30,
			TermVolatility:      0.25,
			TermDrawdown:        0.20,
			TermCorrelation:     0.15,
			TermUnrealizedLoss:  0.10,
		},
		HHI:            Band{Best: 0.1, Worst: 0.5},
		Volatility:     Band{Best: 0.15, Worst: 0.40},
		Drawdown:       Band{Best: 0.05, Worst: 0.30},
		Correlation:    Band{Best: 0.3, Worst: 0.8},
		UnrealizedLoss: Band{Best: 0.0, Worst: 0.5},
		HealthyMin:     70,
		CautionMin:     40,
	}
}

// Validate checks that weights are non-negative and sum to 1, that every
// band is well ordered and that the level cut-offs are consistent
func (c Config) Validate() error {
	sum := 0.0
	for _, t := range Terms {
		w, ok := c.Weights[t]
		if !ok {
			return &domain.ConfigurationError{Field: "health.weights." + string(t), Reason: "missing weight"}
		}
		if w < 0 {
			return &domain.ConfigurationError{Field: "health.weights." + string(t), Reason: "weight must be non-negative"}
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		return &domain.ConfigurationError{Field: "health.weights", Reason: fmt.Sprintf("weights sum to %.4f, want 1", sum)}
	}
	bands := map[Term]Band{
		TermDiversification: c.HHI,
		TermVolatility:      c.Volatility,
		TermDrawdown:        c.Drawdown,
		TermCorrelation:     c.Correlation,
		TermUnrealizedLoss:  c.UnrealizedLoss,
	}
	for _, t := range Terms {
		b := bands[t]
		if b.Best >= b.Worst {
			return &domain.ConfigurationError{
				Field:  "health." + string(t),
				Reason: fmt.Sprintf("best threshold %v must be below worst threshold %v", b.Best, b.Worst),
			}
		}
	}
	if c.CautionMin <= 0 || c.CautionMin >= c.HealthyMin || c.HealthyMin > 100 {
		return &domain.ConfigurationError{Field: "health.levels", Reason: "need 0 < caution_min < healthy_min <= 100"}
	}
	return nil
}

// Input is what the scorer needs from the risk calculator
type Input struct {
	Metrics   domain.RiskMetrics
	LossShare float64
	Holdings  int
}

// TermScore is one component's contribution
type TermScore struct {
	Term      Term    `json:"term"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Undefined bool    `json:"undefined,omitempty"`
}

// Result is the health score with its classification and guidance
type Result struct {
	Level   Level       `json:"level"`
	Lowest  Term        `json:"lowest_term,omitempty"`
	Pointer string      `json:"pointer,omitempty"`
	Action  string      `json:"action,omitempty"`
	Terms   []TermScore `json:"terms"`
	Score   float64     `json:"score"`
}

// Scorer computes health scores
type Scorer struct {
	log zerolog.Logger
	cfg Config
}

// NewScorer creates a scorer; cfg must already be validated
func NewScorer(cfg Config, log zerolog.Logger) *Scorer {
	return &Scorer{
		cfg: cfg,
		log: log.With().Str("component", "health_scorer").Logger(),
	}
}

// Score computes the weighted health score
func (s *Scorer) Score(in Input) Result {
	if in.Holdings == 0 {
		return Result{Score: 0, Level: LevelDanger, Action: "Add holdings to start tracking portfolio health."}
	}

	m := in.Metrics
	terms := []TermScore{
		s.term(TermDiversification, &m.HHI, s.cfg.HHI),
		s.term(TermVolatility, m.Volatility, s.cfg.Volatility),
		s.term(TermDrawdown, magnitude(m.MaxDrawdown), s.cfg.Drawdown),
		s.term(TermCorrelation, m.Correlation, s.cfg.Correlation),
		s.term(TermUnrealizedLoss, &in.LossShare, s.cfg.UnrealizedLoss),
	}

	total := 0.0
	lowest := terms[0]
	for _, t := range terms {
		total += t.Score * t.Weight
		if t.Score < lowest.Score {
			lowest = t
		}
	}
	total = formulas.Clamp(total, 0, 100)

	res := Result{Score: total, Terms: terms, Level: s.Classify(total)}
	switch res.Level {
	case LevelCaution:
		res.Lowest = lowest.Term
		res.Pointer = pointerFor(lowest.Term)
	case LevelDanger:
		res.Lowest = lowest.Term
		res.Action = actionFor(lowest.Term)
	case LevelHealthy:
	}

	s.log.Debug().
		Int64("portfolio_id", m.PortfolioID).
		Float64("score", total).
		Str("level", string(res.Level)).
		Str("lowest_term", string(res.Lowest)).
		Msg("Health scored")

	return res
}

// Classify maps a score to its level
func (s *Scorer) Classify(score float64) Level {
	switch {
	case score >= s.cfg.HealthyMin:
		return LevelHealthy
	case score >= s.cfg.CautionMin:
		return LevelCaution
	default:
		return LevelDanger
	}
}

func (s *Scorer) term(t Term, value *float64, band Band) TermScore {
	ts := TermScore{Term: t, Weight: s.cfg.Weights[t]}
	if value == nil {
		ts.Score = NeutralScore
		ts.Undefined = true
		return ts
	}
	ts.Score = band.Score(*value)
	return ts
}

func magnitude(v *float64) *float64 {
	if v == nil {
		return nil
	}
	m := math.Abs(*v)
	return &m
}

func pointerFor(t Term) string {
	switch t {
	case TermDiversification:
		return "Holdings are concentrated in a few names; spreading new money across more tickers would raise the score."
	case TermVolatility:
		return "Portfolio swings are large; adding steadier, lower-volatility holdings would raise the score."
	case TermDrawdown:
		return "The portfolio has fallen far from its peak; review the positions driving the decline."
	case TermCorrelation:
		return "Holdings tend to move together; adding assets from unrelated sectors would raise the score."
	case TermUnrealizedLoss:
		return "Many holdings are below their purchase price; check whether the original reasons to hold still apply."
	}
	return ""
}

func actionFor(t Term) string {
	switch t {
	case TermDiversification:
		return "Reduce the largest position and diversify into other tickers and sectors."
	case TermVolatility:
		return "Trim the most volatile holdings to bring portfolio volatility down."
	case TermDrawdown:
		return "Review stop-loss lines and consider cutting positions responsible for the drawdown."
	case TermCorrelation:
		return "Replace part of the highly correlated holdings with assets from different sectors."
	case TermUnrealizedLoss:
		return "Re-evaluate each losing position and decide whether to cut losses."
	}
	return ""
}
