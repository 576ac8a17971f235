package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/events"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/indicators"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/risk"
	"github.com/aristath/watchtower/internal/modules/screening"
	"github.com/aristath/watchtower/internal/modules/signals"
)

// tickerEval is the per-ticker half of a pass
type tickerEval struct {
	inputs     map[string]signals.Input
	candidates []signals.Candidate
	results    []domain.ScreeningResult
}

// accountEval is the per-portfolio half of a pass
type accountEval struct {
	risk    *risk.Result
	health  *health.Result
	plan    alerts.Plan
	raise   []domain.StopLossRule
	account portfolio.Account
}

type portfolioEval struct {
	accounts []accountEval
	// healthy is true when every scored portfolio is in the healthy band
	healthy bool
}

// evaluateTickers computes indicators, screening scores and signal candidates
// for every ticker that has bars
func (r *Runner) evaluateTickers(day time.Time, book *portfolio.Book, fetched *fetchResult) *tickerEval {
	sectors := book.Sectors()
	eval := &tickerEval{inputs: make(map[string]signals.Input, len(fetched.data))}

	screen := make([]screening.Candidate, 0, len(fetched.data))
	for _, ticker := range book.Tickers() {
		d, ok := fetched.data[ticker]
		if !ok {
			continue
		}
		snap, err := indicators.Compute(ticker, d.bars, r.Indicators)
		if err != nil {
			// Params are validated at startup, so this only fires on a bad override
			r.log.Error().Err(err).Str("ticker", ticker).Msg("Indicator computation failed")
			continue
		}

		f := domain.Fundamentals{Ticker: ticker}
		if d.fundamentals != nil {
			f = *d.fundamentals
		}
		if f.Sector == "" {
			f.Sector = sectors[ticker]
		}
		screen = append(screen, screening.Candidate{Snapshot: snap, Fundamentals: f})

		in := signals.Input{
			Ticker:        ticker,
			Snapshot:      snap,
			Fundamentals:  d.fundamentals,
			MomentumScore: r.Screening.Momentum(snap),
		}
		eval.inputs[ticker] = in
		eval.candidates = append(eval.candidates, r.Detector.Detect(in)...)
	}

	eval.results = r.Screening.ScoreAll(day, screen)
	return eval
}

// evaluatePortfolios runs risk, health and the alert rules per portfolio.
// Only the read of open alerts touches the store.
func (r *Runner) evaluatePortfolios(
	ctx context.Context,
	now, day time.Time,
	book *portfolio.Book,
	fetched *fetchResult,
	indices map[string][]domain.PriceBar,
) (*portfolioEval, error) {
	prices := make(map[string][]domain.PriceBar, len(fetched.data))
	for ticker, d := range fetched.data {
		prices[ticker] = d.bars
	}

	out := &portfolioEval{healthy: true}
	for _, acct := range book.Accounts {
		pid := acct.Portfolio.ID
		res := r.Risk.Calculate(risk.Input{
			PortfolioID: pid,
			Date:        day,
			Holdings:    acct.Holdings,
			Prices:      prices,
		})

		ae := accountEval{account: acct, risk: res}
		var healthScore *float64
		if res.PricedHoldings > 0 {
			h := r.Health.Score(health.Input{
				Metrics:   res.Metrics,
				LossShare: res.LossShare,
				Holdings:  res.PricedHoldings,
			})
			ae.health = &h
			res.Metrics.HealthScore = h.Score
			healthScore = &h.Score
			if h.Level != health.LevelHealthy {
				out.healthy = false
			}
			r.emit(&events.HealthScoredData{PortfolioID: pid, Score: h.Score, Level: string(h.Level)})
		}

		lots := acct.Lots()
		positions := make([]alerts.Position, 0, len(lots))
		for _, lot := range lots {
			positions = append(positions, alerts.Position{
				Ticker:   lot.Ticker,
				Sector:   lot.Sector,
				Bars:     prices[lot.Ticker],
				Shares:   lot.Shares,
				BuyPrice: lot.BuyPrice,
			})
		}
		outcome := r.Alerts.Evaluate(alerts.Input{
			Now:           now,
			PortfolioID:   pid,
			Rules:         acct.Rules,
			Weights:       res.Weights,
			SectorWeights: res.SectorWeights,
			IndexBars:     indices,
			HealthScore:   healthScore,
			Positions:     positions,
		})

		open, err := r.AlertRepo.Open(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("failed to load open alerts of portfolio %d: %w", pid, err)
		}
		ae.plan = alerts.Reconcile(now, pid, open, outcome)
		ae.raise = outcome.UpdatedRules
		out.accounts = append(out.accounts, ae)
	}
	return out, nil
}

// persist writes the pass results in one transaction. Events go out only
// once everything is committed.
func (r *Runner) persist(ctx context.Context, now, day time.Time, te *tickerEval, pe *portfolioEval, s *Summary) error {
	snapshots := make([]domain.RiskMetrics, 0, len(pe.accounts))
	for _, ae := range pe.accounts {
		if ae.health != nil {
			snapshots = append(snapshots, ae.risk.Metrics)
		}
	}

	existing, err := r.SignalRepo.Valid(ctx)
	if err != nil {
		return err
	}
	plan := r.Tracker.Reconcile(now, existing, te.candidates, te.inputs)

	err = database.WithTransaction(r.Store, func(tx *sql.Tx) error {
		if _, err := r.RiskRepo.SaveAllTx(ctx, tx, snapshots); err != nil {
			return err
		}
		if err := r.ScreeningRepo.ReplaceTx(ctx, tx, day, te.results); err != nil {
			return err
		}
		if !plan.Empty() {
			if _, err := r.SignalRepo.ApplyTx(ctx, tx, plan); err != nil {
				return err
			}
		}
		for _, ae := range pe.accounts {
			if !ae.plan.Empty() {
				if _, err := r.AlertRepo.ApplyTx(ctx, tx, ae.plan); err != nil {
					return err
				}
			}
			if err := r.Book.Repository().RaiseHighestTx(ctx, tx, ae.raise); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist pass %s: %w", s.Date, err)
	}

	s.Counts.SignalsCreated = len(plan.Create)
	s.Counts.SignalsExpired = len(plan.Expire)
	s.Counts.SignalsInvalidated = len(plan.Invalidate)
	r.emit(&events.SignalsUpdatedData{
		Created:     len(plan.Create),
		Expired:     len(plan.Expire),
		Invalidated: len(plan.Invalidate),
	})

	for _, ae := range pe.accounts {
		s.Counts.AlertsCreated += len(ae.plan.Create)
		s.Counts.AlertsEscalated += len(ae.plan.Escalate)
		s.Counts.AlertsResolved += len(ae.plan.Resolve)
		if !ae.plan.Empty() {
			r.emit(&events.AlertsUpdatedData{
				PortfolioID: ae.account.Portfolio.ID,
				Created:     len(ae.plan.Create),
				Escalated:   len(ae.plan.Escalate),
				Resolved:    len(ae.plan.Resolve),
			})
		}
	}
	return nil
}
