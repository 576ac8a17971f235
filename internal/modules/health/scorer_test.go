package health

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/watchtower/internal/domain"
)

func newScorer() *Scorer {
	return NewScorer(DefaultConfig(), zerolog.Nop())
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[Term]float64{
		TermDiversification: 0.30,
		TermVolatility:      0.25,
		TermDrawdown:        0.20,
		TermCorrelation:     0.15,
		TermUnrealizedLoss:  0.05,
	}
	err := cfg.Validate()
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "health.weights", cfgErr.Field)

	cfg = DefaultConfig()
	cfg.Volatility = Band{Best: 0.5, Worst: 0.1}
	assert.True(t, errors.As(cfg.Validate(), &cfgErr))

	cfg = DefaultConfig()
	delete(cfg.Weights, TermCorrelation)
	assert.True(t, errors.As(cfg.Validate(), &cfgErr))
}

func TestScoreBestCase(t *testing.T) {
	res := newScorer().Score(Input{
		Holdings: 10,
		Metrics: domain.RiskMetrics{
			HHI:         0.05,
			Volatility:  domain.Float(0.10),
			MaxDrawdown: domain.Float(-0.02),
			Correlation: domain.Float(0.1),
		},
		LossShare: 0,
	})

	assert.InDelta(t, 100.0, res.Score, 1e-9)
	assert.Equal(t, LevelHealthy, res.Level)
	assert.Empty(t, res.Pointer)
	assert.Empty(t, res.Action)
	assert.Len(t, res.Terms, 5)
}

func TestScoreWorstCaseClampsToZero(t *testing.T) {
	res := newScorer().Score(Input{
		Holdings: 1,
		Metrics: domain.RiskMetrics{
			HHI:         1.0,
			Volatility:  domain.Float(0.9),
			MaxDrawdown: domain.Float(-0.6),
			Correlation: domain.Float(0.95),
		},
		LossShare: 1.0,
	})

	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, LevelDanger, res.Level)
	assert.Equal(t, TermDiversification, res.Lowest, "ties resolve to the first declared term")
	assert.NotEmpty(t, res.Action)
	for _, term := range res.Terms {
		assert.GreaterOrEqual(t, term.Score, 0.0)
	}
}

func TestScoreUndefinedMetricsAreNeutral(t *testing.T) {
	res := newScorer().Score(Input{
		Holdings:  1,
		Metrics:   domain.RiskMetrics{HHI: 1.0},
		LossShare: 0,
	})

	// diversification 0, three neutral terms, unrealized loss 100
	assert.InDelta(t, 0.25*50+0.20*50+0.15*50+0.10*100, res.Score, 1e-9)
	for _, term := range res.Terms {
		switch term.Term {
		case TermVolatility, TermDrawdown, TermCorrelation:
			assert.True(t, term.Undefined)
			assert.Equal(t, NeutralScore, term.Score)
		case TermDiversification, TermUnrealizedLoss:
			assert.False(t, term.Undefined)
		}
	}
}

func TestScoreCautionPointsAtLowestTerm(t *testing.T) {
	res := newScorer().Score(Input{
		Holdings: 5,
		Metrics: domain.RiskMetrics{
			HHI:         0.1,
			Volatility:  domain.Float(0.40),
			MaxDrawdown: domain.Float(-0.05),
			Correlation: domain.Float(0.8),
		},
	})

	assert.InDelta(t, 60.0, res.Score, 1e-9)
	assert.Equal(t, LevelCaution, res.Level)
	assert.Equal(t, TermVolatility, res.Lowest)
	assert.NotEmpty(t, res.Pointer)
	assert.Empty(t, res.Action)
}

func TestScoreInterpolates(t *testing.T) {
	res := newScorer().Score(Input{
		Holdings: 5,
		Metrics: domain.RiskMetrics{
			HHI:         0.3,                  // 50
			Volatility:  domain.Float(0.275),  // 50
			MaxDrawdown: domain.Float(-0.175), // 50
			Correlation: domain.Float(0.55),   // 50
		},
		LossShare: 0.25, // 50
	})
	assert.InDelta(t, 50.0, res.Score, 1e-9)
	assert.Equal(t, LevelCaution, res.Level)
}

func TestClassifyBoundaries(t *testing.T) {
	s := newScorer()
	assert.Equal(t, LevelHealthy, s.Classify(100))
	assert.Equal(t, LevelHealthy, s.Classify(70))
	assert.Equal(t, LevelCaution, s.Classify(69.999))
	assert.Equal(t, LevelCaution, s.Classify(40))
	assert.Equal(t, LevelDanger, s.Classify(39.999))
	assert.Equal(t, LevelDanger, s.Classify(0))
}

func TestScoreEmptyPortfolio(t *testing.T) {
	res := newScorer().Score(Input{})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, LevelDanger, res.Level)
}
