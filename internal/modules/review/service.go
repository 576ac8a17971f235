package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/watchtower/internal/domain"
)

// SignalStore reads stored signals
type SignalStore interface {
	Get(ctx context.Context, id int64) (*domain.Signal, error)
	CreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Signal, error)
}

// AlertStore reads stored alerts
type AlertStore interface {
	Get(ctx context.Context, id int64) (*domain.Alert, error)
	CreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Alert, error)
}

// HoldingSource lists the positions of a portfolio
type HoldingSource interface {
	Holdings(ctx context.Context, portfolioID int64) ([]domain.Holding, error)
}

// SimulationCounter counts what-if simulations run in a period
type SimulationCounter interface {
	CountBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Review limits
const (
	MaxWeeksAgo  = 52
	MaxMonthsAgo = 12

	fetchConcurrency = 4
	// bars before the creation day so a weekend signal still finds a close
	leadDays = 10
)

// Review summarises one calendar period. Rates are fractions and nil when
// nothing could be scored.
type Review struct {
	SignalAccuracy *float64        `json:"signal_accuracy"`
	AlertReadRate  *float64        `json:"alert_read_rate"`
	IgnoredImpact  *float64        `json:"if_followed_impact"`
	Period         string          `json:"period"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	Signals        []SignalOutcome `json:"signals"`
	Alerts         []AlertOutcome  `json:"alerts"`
	Highlights     []string        `json:"highlights"`
	SignalsTotal   int             `json:"signals_total"`
	SignalsScored  int             `json:"signals_scored"`
	SignalsHit     int             `json:"signals_hit"`
	AlertsTotal    int             `json:"alerts_total"`
	AlertsRead     int             `json:"alerts_read"`
	SimulationsRun int             `json:"simulations_run"`
}

// Service computes outcomes from stored signals, alerts and fetched prices
type Service struct {
	prices   domain.PriceSource
	signals  SignalStore
	alerts   AlertStore
	holdings HoldingSource
	sims     SimulationCounter
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a review service. sims may be nil.
func NewService(prices domain.PriceSource, signals SignalStore, alerts AlertStore, holdings HoldingSource, sims SimulationCounter, log zerolog.Logger) *Service {
	return &Service{
		prices:   prices,
		signals:  signals,
		alerts:   alerts,
		holdings: holdings,
		sims:     sims,
		now:      time.Now,
		log:      log.With().Str("service", "review").Logger(),
	}
}

// SignalOutcome returns the price path after one signal
func (s *Service) SignalOutcome(ctx context.Context, id int64) (*SignalOutcome, error) {
	sig, err := s.signals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	bars := s.fetchAll(ctx, map[string]span{sig.Ticker: {first: sig.CreatedAt, last: sig.CreatedAt}}, now)
	out := signalOutcome(*sig, bars[sig.Ticker], now)
	return &out, nil
}

// AlertOutcome returns the price path after one alert
func (s *Service) AlertOutcome(ctx context.Context, id int64) (*AlertOutcome, error) {
	a, err := s.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	outs, err := s.alertOutcomes(ctx, []domain.Alert{*a}, now)
	if err != nil {
		return nil, err
	}
	return &outs[0], nil
}

// Weekly reviews the Monday-to-Sunday week weeksAgo weeks before this one
func (s *Service) Weekly(ctx context.Context, weeksAgo int) (*Review, error) {
	if weeksAgo < 0 || weeksAgo > MaxWeeksAgo {
		return nil, &domain.ConfigurationError{Field: "weeks_ago", Reason: fmt.Sprintf("must be within [0,%d]", MaxWeeksAgo)}
	}
	today := startOfDay(s.now())
	monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	start := monday.AddDate(0, 0, -7*weeksAgo)
	return s.build(ctx, "weekly", start, start.AddDate(0, 0, 7))
}

// Monthly reviews the calendar month monthsAgo months before this one
func (s *Service) Monthly(ctx context.Context, monthsAgo int) (*Review, error) {
	if monthsAgo < 0 || monthsAgo > MaxMonthsAgo {
		return nil, &domain.ConfigurationError{Field: "months_ago", Reason: fmt.Sprintf("must be within [0,%d]", MaxMonthsAgo)}
	}
	today := startOfDay(s.now())
	start := time.Date(today.Year(), today.Month()-time.Month(monthsAgo), 1, 0, 0, 0, 0, time.UTC)
	return s.build(ctx, "monthly", start, start.AddDate(0, 1, 0))
}

func (s *Service) build(ctx context.Context, period string, start, end time.Time) (*Review, error) {
	now := s.now()
	sigs, err := s.signals.CreatedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	alerts, err := s.alerts.CreatedBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	spans := make(map[string]span)
	for _, sig := range sigs {
		noteEvent(spans, sig.Ticker, sig.CreatedAt)
	}
	for _, a := range alerts {
		if a.Ticker != nil {
			noteEvent(spans, *a.Ticker, a.CreatedAt)
		}
	}
	bars := s.fetchAll(ctx, spans, now)

	rv := &Review{
		Period:      period,
		PeriodStart: domain.DateKey(start),
		PeriodEnd:   domain.DateKey(end.AddDate(0, 0, -1)),
		Signals:     make([]SignalOutcome, 0, len(sigs)),
		Highlights:  []string{},
	}
	for _, sig := range sigs {
		out := signalOutcome(sig, bars[sig.Ticker], now)
		rv.Signals = append(rv.Signals, out)
		rv.SignalsTotal++
		if out.Success != nil {
			rv.SignalsScored++
			if *out.Success {
				rv.SignalsHit++
			}
		}
	}
	if rv.SignalsScored > 0 {
		acc := float64(rv.SignalsHit) / float64(rv.SignalsScored)
		rv.SignalAccuracy = &acc
	}

	rv.Alerts, err = s.alertOutcomesWith(ctx, alerts, bars, now)
	if err != nil {
		return nil, err
	}
	for _, a := range rv.Alerts {
		rv.AlertsTotal++
		if a.Action == ActionRead {
			rv.AlertsRead++
			continue
		}
		if a.PortfolioImpact != nil {
			sum := *a.PortfolioImpact
			if rv.IgnoredImpact != nil {
				sum += *rv.IgnoredImpact
			}
			rv.IgnoredImpact = &sum
		}
	}
	if rv.AlertsTotal > 0 {
		rate := float64(rv.AlertsRead) / float64(rv.AlertsTotal)
		rv.AlertReadRate = &rate
	}

	if s.sims != nil {
		n, err := s.sims.CountBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		rv.SimulationsRun = n
	}

	rv.Highlights = highlights(rv)
	return rv, nil
}

func (s *Service) alertOutcomes(ctx context.Context, alerts []domain.Alert, now time.Time) ([]AlertOutcome, error) {
	spans := make(map[string]span)
	for _, a := range alerts {
		if a.Ticker != nil {
			noteEvent(spans, *a.Ticker, a.CreatedAt)
		}
	}
	return s.alertOutcomesWith(ctx, alerts, s.fetchAll(ctx, spans, now), now)
}

func (s *Service) alertOutcomesWith(ctx context.Context, alerts []domain.Alert, bars map[string][]domain.PriceBar, now time.Time) ([]AlertOutcome, error) {
	held := make(map[int64]map[string]float64)
	outs := make([]AlertOutcome, 0, len(alerts))
	for _, a := range alerts {
		shares := 0.0
		if a.Ticker != nil {
			byTicker, ok := held[a.PortfolioID]
			if !ok {
				holdings, err := s.holdings.Holdings(ctx, a.PortfolioID)
				if err != nil {
					return nil, err
				}
				byTicker = make(map[string]float64, len(holdings))
				for _, h := range holdings {
					byTicker[h.Ticker] += h.Shares
				}
				held[a.PortfolioID] = byTicker
			}
			shares = byTicker[*a.Ticker]
		}
		outs = append(outs, alertOutcome(a, bars[a.TickerOrEmpty()], shares, now))
	}
	return outs, nil
}

// span is the first and last event time of one ticker
type span struct {
	first time.Time
	last  time.Time
}

// fetchAll loads bars for every ticker from shortly before its first event
// to the long horizon of its last one, capped at now. A failed ticker is
// logged and left out.
func (s *Service) fetchAll(ctx context.Context, spans map[string]span, now time.Time) map[string][]domain.PriceBar {
	out := make(map[string][]domain.PriceBar, len(spans))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for ticker, sp := range spans {
		g.Go(func() error {
			from := startOfDay(sp.first).AddDate(0, 0, -leadDays)
			to := startOfDay(sp.last).AddDate(0, 0, LongHorizon+leadDays)
			if to.After(now) {
				to = now
			}
			bars, err := s.prices.FetchBars(gctx, ticker, from, to)
			if err != nil {
				s.log.Warn().Err(err).Str("ticker", ticker).Msg("Outcome prices unavailable")
				return nil
			}
			mu.Lock()
			out[ticker] = bars
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func noteEvent(spans map[string]span, ticker string, at time.Time) {
	sp, ok := spans[ticker]
	if !ok {
		spans[ticker] = span{first: at, last: at}
		return
	}
	if at.Before(sp.first) {
		sp.first = at
	}
	if at.After(sp.last) {
		sp.last = at
	}
	spans[ticker] = sp
}

func highlights(rv *Review) []string {
	out := []string{}
	if rv.SignalAccuracy != nil {
		out = append(out, fmt.Sprintf("Signal accuracy %.0f%% (%d of %d)", *rv.SignalAccuracy*100, rv.SignalsHit, rv.SignalsScored))
	}
	if rv.AlertReadRate != nil {
		out = append(out, fmt.Sprintf("Read %d of %d alerts", rv.AlertsRead, rv.AlertsTotal))
	}
	if rv.IgnoredImpact != nil {
		out = append(out, fmt.Sprintf("Unread alerts moved held positions by %+.0f", *rv.IgnoredImpact))
	}
	if rv.SimulationsRun > 0 {
		out = append(out, fmt.Sprintf("Ran %d what-if simulations", rv.SimulationsRun))
	}
	return out
}
