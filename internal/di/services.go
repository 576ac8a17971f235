package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/clients/yahoo"
	"github.com/aristath/watchtower/internal/config"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/events"
	"github.com/aristath/watchtower/internal/metrics"
	"github.com/aristath/watchtower/internal/modules/alerts"
	"github.com/aristath/watchtower/internal/modules/health"
	"github.com/aristath/watchtower/internal/modules/notifications"
	"github.com/aristath/watchtower/internal/modules/portfolio"
	"github.com/aristath/watchtower/internal/modules/prices"
	"github.com/aristath/watchtower/internal/modules/review"
	"github.com/aristath/watchtower/internal/modules/risk"
	"github.com/aristath/watchtower/internal/modules/screening"
	"github.com/aristath/watchtower/internal/modules/signals"
	"github.com/aristath/watchtower/internal/modules/simulation"
	"github.com/aristath/watchtower/internal/pipeline"
)

// InitializeRepositories creates every repository on the opened databases
func InitializeRepositories(c *Container, log zerolog.Logger) {
	main := c.MainDB.Conn()
	c.PortfolioRepo = portfolio.NewRepository(main, log)
	c.RiskRepo = risk.NewRepository(main, log)
	c.ScreeningRepo = screening.NewRepository(main, log)
	c.SignalRepo = signals.NewRepository(main, log)
	c.AlertRepo = alerts.NewRepository(main, log)
	c.NotificationRepo = notifications.NewRepository(main, log)
	c.RunRepo = pipeline.NewRunRepository(main, log)
	c.SimulationRepo = simulation.NewRepository(main, log)
	c.PriceRepo = prices.NewRepository(c.CacheDB.Conn(), log)
}

// InitializeServices creates clients, services and the pipeline runner.
// The market data source is injectable so tests and offline runs can
// replace Yahoo.
func InitializeServices(c *Container, cfg *config.Config, source Source, log zerolog.Logger) error {
	policy := cfg.Policy

	c.EventBus = events.NewBus()
	c.EventManager = events.NewManager(c.EventBus, log)
	c.Metrics = metrics.NewRegistry(log)

	if source.Prices == nil || source.Fundamentals == nil {
		c.YahooClient = yahoo.NewClient(policy.Provider, log)
		if source.Prices == nil {
			source.Prices = c.YahooClient
		}
		if source.Fundamentals == nil {
			source.Fundamentals = c.YahooClient
		}
	}
	c.PriceService = prices.NewService(c.PriceRepo, source.Prices, source.Fundamentals,
		policy.Pipeline.FundamentalsTTL, c.Metrics, log)

	notifiers, err := buildNotifiers(cfg, log)
	if err != nil {
		return err
	}
	c.Notifiers = notifiers

	c.PortfolioService = portfolio.NewService(c.PortfolioRepo, log)
	c.HealthScorer = health.NewScorer(policy.Health, log)
	c.ScreeningScorer = screening.NewScorer(policy.Screening, log)
	c.Simulator = simulation.NewService(c.PriceService, c.PortfolioRepo, c.SimulationRepo, log)
	c.Reviewer = review.NewService(c.PriceService, c.SignalRepo, c.AlertRepo, c.PortfolioRepo, c.SimulationRepo, log)
	detector := signals.NewDetector(policy.Signals, log)

	c.Dispatcher = notifications.NewDispatcher(policy.Notifications, c.NotificationRepo,
		pendingSource{alerts: c.AlertRepo, signals: c.SignalRepo},
		c.Notifiers, c.EventManager, c.Metrics, log)

	c.Runner = pipeline.NewRunner(pipeline.Config{
		Indices:       cfg.MarketIndices,
		TickerTimeout: policy.Pipeline.TickerTimeout,
		Concurrency:   policy.Pipeline.Concurrency,
		LookbackDays:  policy.Pipeline.LookbackDays,
	}, pipeline.Deps{
		Store:         c.MainDB.Conn(),
		Book:          c.PortfolioService,
		Prices:        c.PriceService,
		Fundamentals:  c.PriceService,
		Indicators:    policy.Indicators,
		Risk:          risk.NewCalculator(policy.Risk.RiskFreeRate, log),
		Health:        c.HealthScorer,
		Screening:     c.ScreeningScorer,
		Detector:      detector,
		Tracker:       signals.NewTracker(detector, log),
		Alerts:        alerts.NewGenerator(policy.Alerts, log),
		RiskRepo:      c.RiskRepo,
		ScreeningRepo: c.ScreeningRepo,
		SignalRepo:    c.SignalRepo,
		AlertRepo:     c.AlertRepo,
		Runs:          c.RunRepo,
		Dispatcher:    c.Dispatcher,
		Events:        c.EventManager,
		Metrics:       c.Metrics,
	}, log)

	log.Info().
		Int("notifiers", len(c.Notifiers)).
		Strs("indices", cfg.MarketIndices).
		Msg("Services initialized")
	return nil
}

// Source overrides the market data providers; nil fields fall back to Yahoo
type Source struct {
	Prices       domain.PriceSource
	Fundamentals domain.FundamentalsSource
}

func buildNotifiers(cfg *config.Config, log zerolog.Logger) ([]domain.Notifier, error) {
	var notifiers []domain.Notifier
	if cfg.TelegramBotToken != "" {
		tg, err := notifications.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, 3, 2*time.Second, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notifications.NewWebhookNotifier(cfg.WebhookURL, 10*time.Second, log))
	}
	if len(notifiers) == 0 {
		log.Warn().Msg("No notifier configured; dispatched notices are only stored and streamed")
	}
	return notifiers, nil
}
