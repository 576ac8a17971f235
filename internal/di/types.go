// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"time"

	"github.com/aristath/watchtower/internal/clients/yahoo"
	"github.com/aristath/watchtower/internal/database"
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

// Container holds all dependencies for the application.
// It is created by Wire and passed to the server and the CLI commands.
type Container struct {
	// Databases
	MainDB  *database.DB // portfolios, evaluation results, arbiter state
	CacheDB *database.DB // re-fetchable market data

	// Clients
	YahooClient *yahoo.Client
	Notifiers   []domain.Notifier

	// Repositories
	PortfolioRepo    *portfolio.Repository
	PriceRepo        *prices.Repository
	RiskRepo         *risk.Repository
	ScreeningRepo    *screening.Repository
	SignalRepo       *signals.Repository
	AlertRepo        *alerts.Repository
	NotificationRepo *notifications.Repository
	RunRepo          *pipeline.RunRepository
	SimulationRepo   *simulation.Repository

	// Services
	PortfolioService *portfolio.Service
	PriceService     *prices.Service
	HealthScorer     *health.Scorer
	ScreeningScorer  *screening.Scorer
	Dispatcher       *notifications.Dispatcher
	Runner           *pipeline.Runner
	Simulator        *simulation.Service
	Reviewer         *review.Service

	// Infrastructure
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Registry
}

// Close closes every database. Errors are returned for the first failure only.
func (c *Container) Close() error {
	var first error
	for _, db := range []*database.DB{c.MainDB, c.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// pendingSource feeds the arbiter from the alert and signal stores
type pendingSource struct {
	alerts  *alerts.Repository
	signals *signals.Repository
}

func (p pendingSource) PendingAlerts(ctx context.Context) ([]domain.Alert, error) {
	return p.alerts.PendingAlerts(ctx)
}

func (p pendingSource) PendingSignals(ctx context.Context, now time.Time) ([]domain.Signal, error) {
	return p.signals.PendingSignals(ctx, now)
}
