// Package pipeline runs the daily pass: fetch market data, evaluate every
// ticker and portfolio, persist the results and hand notices to the arbiter.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/events"
	"github.com/aristath/watchtower/internal/metrics"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/indicators"
	"github.com/aristath/watchtower/internal/modules/notifications"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/risk"
	"github.com/aristath/watchtower/internal/modules/screening"
	"github.com/aristath/watchtower/internal/modules/signals"
)

// Config tunes the pass
type Config struct {
	Indices       []string
	TickerTimeout time.Duration
	Concurrency   int
	LookbackDays  int
}

// Deps are the collaborators of a Runner. Events, Metrics and Dispatcher may be nil.
// Store is the database the repositories write to; a pass commits there in one transaction.
type Deps struct {
	Store         *sql.DB
	Book          *portfolio.Service
	Prices        domain.PriceSource
	Fundamentals  domain.FundamentalsSource
	Risk          *risk.Calculator
	Health        *health.Scorer
	Screening     *screening.Scorer
	Detector      *signals.Detector
	Tracker       *signals.Tracker
	Alerts        *alerts.Generator
	RiskRepo      *risk.Repository
	ScreeningRepo *screening.Repository
	SignalRepo    *signals.Repository
	AlertRepo     *alerts.Repository
	Runs          *RunRepository
	Dispatcher    *notifications.Dispatcher
	Events        *events.Manager
	Metrics       *metrics.Registry
	Indicators    indicators.Params
}

// Runner executes daily passes, one at a time
type Runner struct {
	Deps
	prices       domain.PriceSource
	fundamentals domain.FundamentalsSource
	log          zerolog.Logger
	now          func() time.Time
	cfg          Config
	running      atomic.Bool
}

// NewRunner creates a pass runner
func NewRunner(cfg Config, deps Deps, log zerolog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TickerTimeout <= 0 {
		cfg.TickerTimeout = 30 * time.Second
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 400
	}
	return &Runner{
		Deps:         deps,
		prices:       deps.Prices,
		fundamentals: deps.Fundamentals,
		cfg:          cfg,
		now:          time.Now,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one pass for date. A pass already in progress yields
// ConcurrencyConflictError. Store failures abort the pass with status stale
// and nothing from the pass is written.
func (r *Runner) Run(ctx context.Context, date time.Time) (*Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, &domain.ConcurrencyConflictError{Key: "pipeline"}
	}
	defer r.running.Store(false)
	return r.run(ctx, date)
}

// Trigger starts a pass in the background and returns once it holds the run
// slot. done receives the result; it is buffered so nobody has to read it.
func (r *Runner) Trigger(ctx context.Context, date time.Time) (<-chan error, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, &domain.ConcurrencyConflictError{Key: "pipeline"}
	}
	done := make(chan error, 1)
	go func() {
		defer r.running.Store(false)
		_, err := r.run(ctx, date)
		done <- err
	}()
	return done, nil
}

func (r *Runner) run(ctx context.Context, date time.Time) (*Summary, error) {
	now := r.now()
	if date.IsZero() {
		date = now
	}
	day := dayOf(date)

	s := &Summary{
		RunID:   uuid.New().String(),
		Date:    domain.DateKey(day),
		Started: now,
		Status:  StatusRunning,
		Gaps:    []Gap{},
		Errors:  []string{},
	}
	log := r.log.With().Str("run_id", s.RunID).Str("date", s.Date).Logger()

	if err := r.Runs.Start(ctx, s); err != nil {
		return nil, err
	}

	err := r.pass(ctx, now, day, s, log)
	r.finish(ctx, s, err, log)
	if err != nil {
		return s, err
	}
	return s, nil
}

func (r *Runner) pass(ctx context.Context, now, day time.Time, s *Summary, log zerolog.Logger) error {
	timer := r.Metrics.StartStepTimer("load")
	book, err := r.Book.LoadBook(ctx)
	if err != nil {
		timer.Stop("error")
		r.Metrics.RecordPipelineError("load", "store")
		return err
	}
	timer.Stop("ok")

	tickers := book.Tickers()
	s.Counts.Tickers = len(tickers)
	s.Counts.Portfolios = len(book.Accounts)
	r.emit(&events.PassStartedData{RunID: s.RunID, Date: s.Date, Tickers: len(tickers)})
	log.Info().Int("tickers", len(tickers)).Int("portfolios", len(book.Accounts)).Msg("Pass started")

	timer = r.Metrics.StartStepTimer("fetch")
	from := day.AddDate(0, 0, -r.cfg.LookbackDays)
	fetched, err := r.fetch(ctx, tickers, from, day, true)
	if err != nil {
		timer.Stop("error")
		return fmt.Errorf("fetch cancelled: %w", err)
	}
	indexBars, err := r.fetch(ctx, r.cfg.Indices, day.AddDate(0, 0, -14), day, false)
	if err != nil {
		timer.Stop("error")
		return fmt.Errorf("index fetch cancelled: %w", err)
	}
	timer.Stop("ok")
	r.recordGaps(s, fetched.gaps, log)
	r.recordGaps(s, indexBars.gaps, log)

	timer = r.Metrics.StartStepTimer("compute")
	eval := r.evaluateTickers(day, book, fetched)
	s.Counts.Scored = len(eval.results)

	indices := make(map[string][]domain.PriceBar, len(indexBars.data))
	for ticker, d := range indexBars.data {
		indices[ticker] = d.bars
	}
	portfolios, err := r.evaluatePortfolios(ctx, now, day, book, fetched, indices)
	if err != nil {
		timer.Stop("error")
		r.Metrics.RecordPipelineError("compute", "store")
		return err
	}
	timer.Stop("ok")
	s.Healthy = portfolios.healthy

	timer = r.Metrics.StartStepTimer("persist")
	if err := r.persist(ctx, now, day, eval, portfolios, s); err != nil {
		timer.Stop("error")
		r.Metrics.RecordPipelineError("persist", "store")
		return err
	}
	timer.Stop("ok")

	if r.Dispatcher == nil {
		return nil
	}
	timer = r.Metrics.StartStepTimer("dispatch")
	out, err := r.Dispatcher.Dispatch(ctx, day, now, portfolios.healthy)
	switch {
	case domain.IsConcurrencyConflict(err):
		timer.Stop("skipped")
		log.Info().Msg("Notices already dispatched for this date")
	case err != nil:
		timer.Stop("error")
		r.Metrics.RecordPipelineError("dispatch", "store")
		s.Errors = append(s.Errors, err.Error())
		log.Error().Err(err).Msg("Dispatch failed")
	default:
		timer.Stop("ok")
		s.Counts.Dispatched = len(out.Dispatched)
		s.Counts.Deferred = len(out.Deferred)
		s.Counts.Suppressed = len(out.Suppressed)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, s *Summary, err error, log zerolog.Logger) {
	s.Finished = r.now()
	switch {
	case err != nil:
		s.Status = StatusStale
		s.Errors = append(s.Errors, err.Error())
	case len(s.Gaps) > 0 || len(s.Errors) > 0:
		s.Status = StatusPartial
	default:
		s.Status = StatusOK
	}

	// The run record is written even when the pass was cancelled
	if ferr := r.Runs.Finish(context.WithoutCancel(ctx), s); ferr != nil {
		log.Error().Err(ferr).Msg("Failed to record pass result")
	}
	r.Metrics.RecordPass(s.Status, s.Finished)
	r.emit(&events.PassCompletedData{RunID: s.RunID, Date: s.Date, Status: s.Status, Gaps: len(s.Gaps), Duration: s.Duration()})

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
		if r.Events != nil {
			r.Events.EmitError("pipeline", err, map[string]interface{}{"run_id": s.RunID})
		}
	}
	event.
		Str("status", s.Status).
		Int("gaps", len(s.Gaps)).
		Int("scored", s.Counts.Scored).
		Int("signals_created", s.Counts.SignalsCreated).
		Int("alerts_created", s.Counts.AlertsCreated).
		Int("dispatched", s.Counts.Dispatched).
		Dur("duration", s.Duration()).
		Msg("Pass finished")
}

func (r *Runner) recordGaps(s *Summary, gaps []Gap, log zerolog.Logger) {
	for _, g := range gaps {
		s.Gaps = append(s.Gaps, g)
		r.Metrics.RecordDataGap()
		r.emit(&events.DataGapData{Ticker: g.Ticker, Reason: g.Reason})
		log.Warn().Str("ticker", g.Ticker).Str("reason", g.Reason).Msg("Data gap")
	}
}

func (r *Runner) emit(data events.EventData) {
	if r.Events != nil {
		r.Events.EmitTyped("pipeline", data)
	}
}

// Screen scores the held and watched universe for date without persisting anything
func (r *Runner) Screen(ctx context.Context, date time.Time, n int) ([]domain.ScreeningResult, error) {
	if date.IsZero() {
		date = r.now()
	}
	day := dayOf(date)

	book, err := r.Book.LoadBook(ctx)
	if err != nil {
		return nil, err
	}
	fetched, err := r.fetch(ctx, book.Tickers(), day.AddDate(0, 0, -r.cfg.LookbackDays), day, true)
	if err != nil {
		return nil, err
	}
	for _, g := range fetched.gaps {
		r.log.Warn().Str("ticker", g.Ticker).Str("reason", g.Reason).Msg("Data gap")
	}
	return screening.Rank(r.evaluateTickers(day, book, fetched).results, n), nil
}

// Running reports whether a pass is in progress
func (r *Runner) Running() bool {
	return r.running.Load()
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
