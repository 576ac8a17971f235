// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// PriceBar is one daily OHLCV bar. Bars are immutable once stored.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Portfolio groups holdings owned by one user
type Portfolio struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	ID        int64     `json:"id"`
}

// Holding represents a position in a portfolio
type Holding struct {
	BuyDate     time.Time `json:"buy_date"`
	Ticker      string    `json:"ticker"`
	Name        string    `json:"name"`
	Sector      string    `json:"sector"`
	ID          int64     `json:"id"`
	PortfolioID int64     `json:"portfolio_id"`
	Shares      float64   `json:"shares"`
	BuyPrice    float64   `json:"buy_price"`
}

// Validate checks holding invariants
func (h Holding) Validate() error {
	if h.Ticker == "" {
		return fmt.Errorf("holding ticker is required")
	}
	if h.Shares <= 0 {
		return fmt.Errorf("holding %s: shares must be positive, got %v", h.Ticker, h.Shares)
	}
	if h.BuyPrice <= 0 {
		return fmt.Errorf("holding %s: buy price must be positive, got %v", h.Ticker, h.BuyPrice)
	}
	return nil
}

// StopLossRule configures the stop-loss line for a single holding.
// StopLossPct is a negative fraction (-0.10 means 10% below the reference).
type StopLossRule struct {
	Ticker       string  `json:"ticker"`
	ID           int64   `json:"id"`
	PortfolioID  int64   `json:"portfolio_id"`
	BuyPrice     float64 `json:"buy_price"`
	StopLossPct  float64 `json:"stop_loss_pct"`
	HighestPrice float64 `json:"highest_price"`
	TrailingStop bool    `json:"trailing_stop"`
	IsActive     bool    `json:"is_active"`
}

// DefaultStopLossPct applies to holdings without an explicit rule
const DefaultStopLossPct = -0.10

// Reference returns the price the stop-loss line is measured from
func (r StopLossRule) Reference() float64 {
	if r.TrailingStop && r.HighestPrice > r.BuyPrice {
		return r.HighestPrice
	}
	return r.BuyPrice
}

// WatchlistItem is a ticker tracked for signals without being held
type WatchlistItem struct {
	AddedAt time.Time `json:"added_at"`
	Ticker  string    `json:"ticker"`
	Name    string    `json:"name"`
	Sector  string    `json:"sector"`
}

// Fundamentals holds the valuation inputs used by screening.
// Ratios are fractions (0.04 means 4%). Nil means unavailable.
type Fundamentals struct {
	Ticker         string   `json:"ticker"`
	Name           string   `json:"name"`
	Sector         string   `json:"sector"`
	PER            *float64 `json:"per,omitempty"`
	PBR            *float64 `json:"pbr,omitempty"`
	DividendYield  *float64 `json:"dividend_yield,omitempty"`
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty"`
	PayoutRatio    *float64 `json:"payout_ratio,omitempty"`
}

// RiskMetrics is the per-portfolio, per-date risk snapshot. Nil fields are undefined.
type RiskMetrics struct {
	Date        time.Time `json:"date"`
	MaxDrawdown *float64  `json:"max_drawdown"`
	Volatility  *float64  `json:"volatility"`
	SharpeRatio *float64  `json:"sharpe_ratio"`
	Correlation *float64  `json:"correlation"`
	VaR95       *float64  `json:"var_95"`
	PortfolioID int64     `json:"portfolio_id"`
	HealthScore float64   `json:"health_score"`
	HHI         float64   `json:"hhi"`
}

// ScreeningResult is one ticker's composite screening score for a date
type ScreeningResult struct {
	Date          time.Time `json:"date"`
	PER           *float64  `json:"per"`
	PBR           *float64  `json:"pbr"`
	DividendYield *float64  `json:"dividend_yield"`
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name"`
	Sector        string    `json:"sector"`
	Score         float64   `json:"score"`
	ValueScore    float64   `json:"value_score"`
	MomentumScore float64   `json:"momentum_score"`
	GrowthScore   float64   `json:"growth_score"`
	SafetyScore   float64   `json:"safety_score"`
}

// Float returns a pointer to v, for optional metric fields
func Float(v float64) *float64 {
	return &v
}
