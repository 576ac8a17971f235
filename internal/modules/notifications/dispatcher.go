package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/events"
	"github.com/aristath/watchtower/internal/metrics"
)

// PendingSource supplies the notices awaiting arbitration
type PendingSource interface {
	PendingAlerts(ctx context.Context) ([]domain.Alert, error)
	PendingSignals(ctx context.Context, now time.Time) ([]domain.Signal, error)
}

// Dispatcher runs the arbiter at most once per date and delivers the result
type Dispatcher struct {
	repo      *Repository
	pending   PendingSource
	notifiers []domain.Notifier
	events    *events.Manager
	metrics   *metrics.Registry
	log       zerolog.Logger
	policy    Policy

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewDispatcher creates a dispatcher. events and metrics may be nil.
func NewDispatcher(
	policy Policy,
	repo *Repository,
	pending PendingSource,
	notifiers []domain.Notifier,
	eventManager *events.Manager,
	reg *metrics.Registry,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		policy:    policy,
		repo:      repo,
		pending:   pending,
		notifiers: notifiers,
		events:    eventManager,
		metrics:   reg,
		inflight:  make(map[string]struct{}),
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch arbitrates everything pending under the key of the pass date day.
// now stamps the throttle log. A second call for the same day, concurrent or
// later, returns ConcurrencyConflictError.
func (d *Dispatcher) Dispatch(ctx context.Context, day, now time.Time, healthy bool) (*Outcome, error) {
	date := domain.DateKey(day)

	if !d.acquire(date) {
		return nil, &domain.ConcurrencyConflictError{Key: date}
	}
	defer d.release(date)

	done, err := d.repo.HasRun(ctx, date)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, &domain.ConcurrencyConflictError{Key: date}
	}

	notices, err := d.loadPending(ctx, now)
	if err != nil {
		return nil, err
	}
	state, err := d.repo.LoadState(ctx, date)
	if err != nil {
		return nil, err
	}

	out := Arbitrate(d.policy, state, Input{Now: now, Date: date, Pending: notices, Healthy: healthy})

	if err := d.repo.Commit(ctx, date, now, out); err != nil {
		return nil, fmt.Errorf("failed to commit dispatch %s: %w", date, err)
	}

	d.record(out)
	d.log.Info().
		Str("date", date).
		Int("dispatched", len(out.Dispatched)).
		Int("deferred", len(out.Deferred)).
		Int("suppressed", len(out.Suppressed)).
		Int("count", out.State.Counter.Count).
		Msg("Notices dispatched")

	if len(out.Dispatched) > 0 {
		d.deliver(ctx, date, out.Dispatched)
	}

	return &out, nil
}

func (d *Dispatcher) acquire(date string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[date]; busy {
		return false
	}
	d.inflight[date] = struct{}{}
	return true
}

func (d *Dispatcher) release(date string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, date)
}

func (d *Dispatcher) loadPending(ctx context.Context, now time.Time) ([]domain.Notice, error) {
	alerts, err := d.pending.PendingAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending alerts: %w", err)
	}
	signals, err := d.pending.PendingSignals(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending signals: %w", err)
	}

	notices := make([]domain.Notice, 0, len(alerts)+len(signals))
	for _, a := range alerts {
		notices = append(notices, domain.AlertNotice(a))
	}
	for _, s := range signals {
		if s.ActiveAt(now) {
			notices = append(notices, domain.SignalNotice(s))
		}
	}
	return notices, nil
}

func (d *Dispatcher) record(out Outcome) {
	for _, n := range out.Dispatched {
		d.metrics.RecordNotices("dispatched", string(n.Channel), 1)
	}
	d.metrics.RecordNotices("deferred", "", len(out.Deferred))
	d.metrics.RecordNotices("suppressed", "", len(out.Suppressed))
}

// deliver fans the batch out to every notifier. The dispatch is already
// committed, so delivery failures are logged and not retried.
func (d *Dispatcher) deliver(ctx context.Context, date string, notices []domain.Notice) {
	if d.events != nil {
		d.events.EmitTyped("notifications", &events.NoticesDispatchedData{Date: date, Notices: notices})
	}

	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n domain.Notifier) {
			defer wg.Done()
			if err := n.Notify(ctx, notices); err != nil {
				d.log.Error().Err(err).Str("notifier", n.Name()).Str("date", date).Msg("Notice delivery failed")
				if d.events != nil {
					d.events.EmitError("notifications", err, map[string]interface{}{"notifier": n.Name(), "date": date})
				}
			}
		}(n)
	}
	wg.Wait()
}
