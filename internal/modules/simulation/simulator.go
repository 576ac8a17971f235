// Package simulation replays price history against a holding or a portfolio
// to answer what-if questions: what if the stop-loss had not been honoured,
// and what if the whole book had been in one ticker.
package simulation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/pkg/formulas"
)

// Scenario names a what-if simulation
type Scenario string

const (
	ScenarioStopLoss      Scenario = "stop_loss"
	ScenarioConcentration Scenario = "concentration"
)

// DefaultLookback is the history replayed when a request does not set one
const DefaultLookback = 365

// StopLossParams describes one position replayed without its stop-loss
type StopLossParams struct {
	Ticker      string  `msgpack:"ticker" json:"ticker"`
	BuyPrice    float64 `msgpack:"buy_price" json:"buy_price"`
	Shares      float64 `msgpack:"shares" json:"shares"`
	StopLossPct float64 `msgpack:"stop_loss_pct" json:"stop_loss_pct"`
	Days        int     `msgpack:"days" json:"days"`
}

// Validate fills defaults and rejects impossible positions
func (p *StopLossParams) Validate() error {
	if p.StopLossPct == 0 {
		p.StopLossPct = domain.DefaultStopLossPct
	}
	if p.Days == 0 {
		p.Days = DefaultLookback
	}
	switch {
	case p.Ticker == "":
		return &domain.ConfigurationError{Field: "ticker", Reason: "is required"}
	case p.BuyPrice <= 0:
		return &domain.ConfigurationError{Field: "buy_price", Reason: "must be positive"}
	case p.Shares <= 0:
		return &domain.ConfigurationError{Field: "shares", Reason: "must be positive"}
	case p.StopLossPct >= 0 || p.StopLossPct <= -1:
		return &domain.ConfigurationError{Field: "stop_loss_pct", Reason: "must be within (-1,0)"}
	case p.Days < 2:
		return &domain.ConfigurationError{Field: "days", Reason: "must be at least 2"}
	}
	return nil
}

// StopLossOutcome compares selling at the stop line with holding to the end.
// The stop fields are only set when the line was reached.
type StopLossOutcome struct {
	StopDate      *time.Time `msgpack:"stop_date" json:"stop_date,omitempty"`
	StopPrice     float64    `msgpack:"stop_price" json:"stop_price,omitempty"`
	StopPnL       float64    `msgpack:"stop_pnl" json:"stop_pnl,omitempty"`
	StopPnLPct    float64    `msgpack:"stop_pnl_pct" json:"stop_pnl_pct,omitempty"`
	WorstPnL      float64    `msgpack:"worst_pnl" json:"worst_pnl,omitempty"`
	WorstPnLPct   float64    `msgpack:"worst_pnl_pct" json:"worst_pnl_pct,omitempty"`
	FinalPrice    float64    `msgpack:"final_price" json:"final_price"`
	HoldPnL       float64    `msgpack:"hold_pnl" json:"hold_pnl"`
	HoldPnLPct    float64    `msgpack:"hold_pnl_pct" json:"hold_pnl_pct"`
	Triggered     bool       `msgpack:"triggered" json:"triggered"`
	Recovered     bool       `msgpack:"recovered" json:"recovered"`
	StopWasBetter bool       `msgpack:"stop_was_better" json:"stop_was_better"`
}

// ReplayStopLoss walks closes in date order. The first close at or below
// buy × (1 + stop pct) triggers the stop. Percentages are fractions.
func ReplayStopLoss(bars []domain.PriceBar, p StopLossParams) (*StopLossOutcome, error) {
	if len(bars) < 2 {
		return nil, &domain.DataGapError{Ticker: p.Ticker, Reason: "insufficient price history"}
	}

	stopLine := p.BuyPrice * (1 + p.StopLossPct)
	final := bars[len(bars)-1].Close
	out := &StopLossOutcome{
		FinalPrice: final,
		HoldPnL:    (final - p.BuyPrice) * p.Shares,
		HoldPnLPct: final/p.BuyPrice - 1,
		Recovered:  final >= p.BuyPrice,
	}

	hit := -1
	for i, b := range bars {
		if b.Close <= stopLine {
			hit = i
			break
		}
	}
	if hit < 0 {
		return out, nil
	}

	stopDate := bars[hit].Date
	out.Triggered = true
	out.StopDate = &stopDate
	out.StopPrice = bars[hit].Close
	out.StopPnL = (out.StopPrice - p.BuyPrice) * p.Shares
	out.StopPnLPct = out.StopPrice/p.BuyPrice - 1

	low := out.StopPrice
	for _, b := range bars[hit:] {
		if b.Close < low {
			low = b.Close
		}
	}
	out.WorstPnL = (low - p.BuyPrice) * p.Shares
	out.WorstPnLPct = low/p.BuyPrice - 1
	out.StopWasBetter = out.StopPnL >= out.HoldPnL
	return out, nil
}

// ConcentrationParams selects the portfolio and the ticker to concentrate in
type ConcentrationParams struct {
	PortfolioID int64  `msgpack:"portfolio_id" json:"portfolio_id"`
	Ticker      string `msgpack:"ticker" json:"ticker"`
	Days        int    `msgpack:"days" json:"days"`
}

// Validate fills defaults and rejects empty requests
func (p *ConcentrationParams) Validate() error {
	if p.Days == 0 {
		p.Days = DefaultLookback
	}
	switch {
	case p.PortfolioID <= 0:
		return &domain.ConfigurationError{Field: "portfolio_id", Reason: "must be positive"}
	case p.Ticker == "":
		return &domain.ConfigurationError{Field: "ticker", Reason: "is required"}
	case p.Days < 2:
		return &domain.ConfigurationError{Field: "days", Reason: "must be at least 2"}
	}
	return nil
}

// Profile is the return and risk of one return series. MaxDrawdown is a
// non-positive fraction.
type Profile struct {
	Volatility  *float64 `msgpack:"volatility" json:"volatility"`
	MaxDrawdown *float64 `msgpack:"max_drawdown" json:"max_drawdown"`
	TotalReturn float64  `msgpack:"total_return" json:"total_return"`
	HHI         float64  `msgpack:"hhi" json:"hhi"`
}

// ConcentrationOutcome compares the current mix with holding only one ticker
type ConcentrationOutcome struct {
	Ticker        string  `msgpack:"ticker" json:"ticker"`
	Portfolio     Profile `msgpack:"portfolio" json:"portfolio"`
	Concentrated  Profile `msgpack:"concentrated" json:"concentrated"`
	CurrentWeight float64 `msgpack:"current_weight" json:"current_weight"`
	Days          int     `msgpack:"days" json:"days"`
}

// CompareConcentration weights each held ticker by its latest value and
// replays daily simple returns over the dates every ticker shares. Tickers
// with fewer than two bars are left out.
func CompareConcentration(holdings []domain.Holding, bars map[string][]domain.PriceBar, ticker string) (*ConcentrationOutcome, error) {
	shares := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		shares[h.Ticker] += h.Shares
	}

	returns := make(map[string]map[time.Time]float64, len(shares))
	values := make(map[string]float64, len(shares))
	total := 0.0
	for t, n := range shares {
		b := bars[t]
		if len(b) < 2 {
			continue
		}
		closes := make([]float64, len(b))
		for i, bar := range b {
			closes[i] = bar.Close
		}
		byDate := make(map[time.Time]float64, len(b)-1)
		for i, r := range formulas.SimpleReturns(closes) {
			byDate[b[i+1].Date] = r
		}
		returns[t] = byDate
		values[t] = b[len(b)-1].Close * n
		total += values[t]
	}
	if _, ok := returns[ticker]; !ok || total <= 0 {
		return nil, &domain.DataGapError{Ticker: ticker, Reason: "insufficient price history"}
	}

	dates := sharedDates(returns)
	if len(dates) < 2 {
		return nil, &domain.DataGapError{Ticker: ticker, Reason: "too few shared trading days"}
	}

	tickers := make([]string, 0, len(returns))
	for t := range returns {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	mixed := make([]float64, len(dates))
	single := make([]float64, len(dates))
	for i, d := range dates {
		for _, t := range tickers {
			mixed[i] += returns[t][d] * values[t] / total
		}
		single[i] = returns[ticker][d]
	}

	weights := make([]float64, 0, len(tickers))
	for _, t := range tickers {
		weights = append(weights, values[t])
	}

	return &ConcentrationOutcome{
		Ticker:        ticker,
		CurrentWeight: values[ticker] / total,
		Portfolio:     profile(mixed, formulas.HHI(weights)),
		Concentrated:  profile(single, 1),
		Days:          len(dates),
	}, nil
}

func sharedDates(returns map[string]map[time.Time]float64) []time.Time {
	var dates []time.Time
	first := true
	for _, byDate := range returns {
		if first {
			for d := range byDate {
				dates = append(dates, d)
			}
			first = false
			continue
		}
		kept := dates[:0]
		for _, d := range dates {
			if _, ok := byDate[d]; ok {
				kept = append(kept, d)
			}
		}
		dates = kept
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func profile(returns []float64, hhi float64) Profile {
	growth := make([]float64, len(returns)+1)
	growth[0] = 1
	for i, r := range returns {
		growth[i+1] = growth[i] * (1 + r)
	}
	return Profile{
		TotalReturn: growth[len(growth)-1] - 1,
		Volatility:  formulas.AnnualizedVolatility(returns),
		MaxDrawdown: formulas.MaxDrawdown(growth),
		HHI:         hhi,
	}
}

// HoldingSource lists the positions of a portfolio
type HoldingSource interface {
	Holdings(ctx context.Context, portfolioID int64) ([]domain.Holding, error)
}

// Service runs simulations on fetched price history and stores the results
type Service struct {
	prices   domain.PriceSource
	holdings HoldingSource
	repo     *Repository
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a simulation service
func NewService(prices domain.PriceSource, holdings HoldingSource, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		prices:   prices,
		holdings: holdings,
		repo:     repo,
		now:      time.Now,
		log:      log.With().Str("service", "simulation").Logger(),
	}
}

// StopLoss replays one position without its stop-loss and stores the result
func (s *Service) StopLoss(ctx context.Context, p StopLossParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	bars, err := s.prices.FetchBars(ctx, p.Ticker, now.AddDate(0, 0, -p.Days), now)
	if err != nil {
		return nil, &domain.DataGapError{Ticker: p.Ticker, Reason: "fetch failed", Err: err}
	}
	outcome, err := ReplayStopLoss(bars, p)
	if err != nil {
		return nil, err
	}

	params := p
	res := &Result{
		Scenario:  ScenarioStopLoss,
		Title:     fmt.Sprintf("%s without stop-loss", p.Ticker),
		Summary:   stopLossSummary(p, outcome),
		StopLoss:  &params,
		Replay:    outcome,
		CreatedAt: now,
	}
	return s.save(ctx, res)
}

// Concentration compares a portfolio with holding only p.Ticker and stores the result
func (s *Service) Concentration(ctx context.Context, p ConcentrationParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	holdings, err := s.holdings.Holdings(ctx, p.PortfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, fmt.Errorf("portfolio %d has no holdings: %w", p.PortfolioID, domain.ErrNotFound)
	}

	now := s.now()
	bars := make(map[string][]domain.PriceBar, len(holdings))
	for _, h := range holdings {
		if _, done := bars[h.Ticker]; done {
			continue
		}
		b, err := s.prices.FetchBars(ctx, h.Ticker, now.AddDate(0, 0, -p.Days), now)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", h.Ticker).Msg("Skipping ticker without history")
			b = nil
		}
		bars[h.Ticker] = b
	}

	outcome, err := CompareConcentration(holdings, bars, p.Ticker)
	if err != nil {
		return nil, err
	}

	params := p
	res := &Result{
		Scenario:      ScenarioConcentration,
		Title:         fmt.Sprintf("Everything in %s", p.Ticker),
		Summary:       concentrationSummary(outcome),
		Concentration: &params,
		Compare:       outcome,
		CreatedAt:     now,
	}
	return s.save(ctx, res)
}

// Get returns a stored simulation
func (s *Service) Get(ctx context.Context, id int64) (*Result, error) {
	return s.repo.Get(ctx, id)
}

// Recent returns the newest stored simulations
func (s *Service) Recent(ctx context.Context, limit int) ([]Result, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *Service) save(ctx context.Context, res *Result) (*Result, error) {
	id, err := s.repo.Save(ctx, *res)
	if err != nil {
		return nil, err
	}
	res.ID = id
	s.log.Info().Int64("id", id).Str("scenario", string(res.Scenario)).Msg("Simulation stored")
	return res, nil
}

func stopLossSummary(p StopLossParams, o *StopLossOutcome) string {
	if !o.Triggered {
		return fmt.Sprintf("%s never reached its %.0f%% stop line. Holding to the end: %+.0f (%+.1f%%).",
			p.Ticker, p.StopLossPct*100, o.HoldPnL, o.HoldPnLPct*100)
	}
	if o.StopWasBetter {
		return fmt.Sprintf("The stop-loss was right. Stopped: %+.0f (%+.1f%%), held: %+.0f (%+.1f%%). Selling avoided %.0f.",
			o.StopPnL, o.StopPnLPct*100, o.HoldPnL, o.HoldPnLPct*100, o.StopPnL-o.HoldPnL)
	}
	return fmt.Sprintf("Holding would have paid off. Stopped: %+.0f (%+.1f%%), held: %+.0f (%+.1f%%), but the position fell as low as %+.0f (%+.1f%%) on the way.",
		o.StopPnL, o.StopPnLPct*100, o.HoldPnL, o.HoldPnLPct*100, o.WorstPnL, o.WorstPnLPct*100)
}

func concentrationSummary(o *ConcentrationOutcome) string {
	return fmt.Sprintf("All in %s vs the current mix: return %+.1f%% vs %+.1f%%, volatility %s vs %s, max drawdown %s vs %s. %s is %.1f%% of the portfolio today.",
		o.Ticker,
		o.Concentrated.TotalReturn*100, o.Portfolio.TotalReturn*100,
		percent(o.Concentrated.Volatility), percent(o.Portfolio.Volatility),
		percent(o.Concentrated.MaxDrawdown), percent(o.Portfolio.MaxDrawdown),
		o.Ticker, o.CurrentWeight*100)
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}
