package testing

import (
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// FixtureStart is the first trading day used by bar fixtures
var FixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewBarFixtures returns one bar per close on consecutive days starting at start
func NewBarFixtures(ticker string, start time.Time, closes ...float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Ticker: ticker,
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 100000,
		}
	}
	return bars
}

// NewTrendFixtures returns n bars moving by step per day from first, with a
// small alternating wiggle so returns are never constant
func NewTrendFixtures(ticker string, start time.Time, n int, first, step float64) []domain.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		wiggle := 0.4
		if i%2 == 1 {
			wiggle = -0.4
		}
		closes[i] = first + step*float64(i) + wiggle
	}
	return NewBarFixtures(ticker, start, closes...)
}

// NewHoldingFixtures returns a three-sector portfolio
func NewHoldingFixtures(portfolioID int64) []domain.Holding {
	bought := FixtureStart.AddDate(0, -6, 0)
	return []domain.Holding{
		{PortfolioID: portfolioID, Ticker: "7203.T", Name: "Toyota Motor", Sector: "Consumer Cyclical", Shares: 100, BuyPrice: 2500, BuyDate: bought},
		{PortfolioID: portfolioID, Ticker: "6758.T", Name: "Sony Group", Sector: "Technology", Shares: 50, BuyPrice: 3000, BuyDate: bought},
		{PortfolioID: portfolioID, Ticker: "8306.T", Name: "Mitsubishi UFJ", Sector: "Financial Services", Shares: 300, BuyPrice: 1200, BuyDate: bought},
	}
}

// NewFundamentalsFixture returns fundamentals with every field populated
func NewFundamentalsFixture(ticker, sector string, per, pbr, yield float64) domain.Fundamentals {
	return domain.Fundamentals{
		Ticker:         ticker,
		Name:           ticker,
		Sector:         sector,
		PER:            domain.Float(per),
		PBR:            domain.Float(pbr),
		DividendYield:  domain.Float(yield),
		RevenueGrowth:  domain.Float(0.08),
		EarningsGrowth: domain.Float(0.10),
		DebtToEquity:   domain.Float(0.8),
		PayoutRatio:    domain.Float(0.35),
	}
}
