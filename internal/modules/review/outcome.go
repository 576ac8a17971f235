// Package review looks back at what happened after signals and alerts were
// raised and rolls that up into weekly and monthly reviews.
package review

import (
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// Horizons after creation at which outcomes are measured, in days
const (
	ShortHorizon = 7
	LongHorizon  = 30
)

// Actions recorded for an alert
const (
	ActionRead    = "read"
	ActionIgnored = "ignored"
)

// SignalOutcome is the price path after a buy signal. A signal is a hit
// when the price rose by the longest horizon reached so far.
type SignalOutcome struct {
	CreatedAt     time.Time         `json:"created_at"`
	PriceAtSignal *float64          `json:"price_at_signal"`
	PriceAfter7d  *float64          `json:"price_after_7d"`
	PriceAfter30d *float64          `json:"price_after_30d"`
	Change7dPct   *float64          `json:"change_7d_pct"`
	Change30dPct  *float64          `json:"change_30d_pct"`
	Success       *bool             `json:"is_success"`
	Ticker        string            `json:"ticker"`
	Type          domain.SignalType `json:"signal_type"`
	SignalID      int64             `json:"signal_id"`
}

// AlertOutcome is the price path after an alert. The warning held when the
// price fell. PortfolioImpact is the value change of the shares the
// portfolio holds in the ticker over the same horizon.
type AlertOutcome struct {
	CreatedAt       time.Time         `json:"created_at"`
	Ticker          *string           `json:"ticker"`
	PriceAtAlert    *float64          `json:"price_at_alert"`
	PriceAfter7d    *float64          `json:"price_after_7d"`
	PriceAfter30d   *float64          `json:"price_after_30d"`
	Change7dPct     *float64          `json:"change_7d_pct"`
	Change30dPct    *float64          `json:"change_30d_pct"`
	WarningHeld     *bool             `json:"warning_held"`
	PortfolioImpact *float64          `json:"portfolio_impact"`
	Type            domain.AlertType  `json:"alert_type"`
	Action          string            `json:"user_action"`
	Level           domain.AlertLevel `json:"level"`
	AlertID         int64             `json:"alert_id"`
	PortfolioID     int64             `json:"portfolio_id"`
}

// trail holds the close on the creation day and the first closes at or after
// each horizon. Horizons still in the future stay nil.
type trail struct {
	at      *float64
	after7  *float64
	after30 *float64
}

func priceTrail(bars []domain.PriceBar, created, now time.Time) trail {
	day := startOfDay(created)
	next := day.AddDate(0, 0, 1)

	var t trail
	for i := range bars {
		if !bars[i].Date.Before(next) {
			break
		}
		c := bars[i].Close
		t.at = &c
	}
	t.after7 = closeFrom(bars, day.AddDate(0, 0, ShortHorizon), now)
	t.after30 = closeFrom(bars, day.AddDate(0, 0, LongHorizon), now)
	return t
}

func closeFrom(bars []domain.PriceBar, target, now time.Time) *float64 {
	if target.After(now) {
		return nil
	}
	for i := range bars {
		if !bars[i].Date.Before(target) && !bars[i].Date.After(now) {
			c := bars[i].Close
			return &c
		}
	}
	return nil
}

// change returns later/at - 1, or nil when either side is missing
func (t trail) change(later *float64) *float64 {
	if t.at == nil || later == nil || *t.at <= 0 {
		return nil
	}
	v := *later / *t.at - 1
	return &v
}

// latest returns the close at the longest horizon reached
func (t trail) latest() *float64 {
	if t.after30 != nil {
		return t.after30
	}
	return t.after7
}

func signalOutcome(s domain.Signal, bars []domain.PriceBar, now time.Time) SignalOutcome {
	t := priceTrail(bars, s.CreatedAt, now)
	out := SignalOutcome{
		SignalID:      s.ID,
		Ticker:        s.Ticker,
		Type:          s.Type,
		CreatedAt:     s.CreatedAt,
		PriceAtSignal: t.at,
		PriceAfter7d:  t.after7,
		PriceAfter30d: t.after30,
		Change7dPct:   t.change(t.after7),
		Change30dPct:  t.change(t.after30),
	}
	if c := t.change(t.latest()); c != nil {
		hit := *c > 0
		out.Success = &hit
	}
	return out
}

// alertOutcome measures a ticker alert. Portfolio-wide alerts keep only
// their action.
func alertOutcome(a domain.Alert, bars []domain.PriceBar, shares float64, now time.Time) AlertOutcome {
	out := AlertOutcome{
		AlertID:     a.ID,
		PortfolioID: a.PortfolioID,
		Ticker:      a.Ticker,
		Type:        a.Type,
		Level:       a.Level,
		CreatedAt:   a.CreatedAt,
		Action:      ActionIgnored,
	}
	if a.IsRead {
		out.Action = ActionRead
	}
	if a.Ticker == nil {
		return out
	}

	t := priceTrail(bars, a.CreatedAt, now)
	out.PriceAtAlert = t.at
	out.PriceAfter7d = t.after7
	out.PriceAfter30d = t.after30
	out.Change7dPct = t.change(t.after7)
	out.Change30dPct = t.change(t.after30)

	latest := t.latest()
	if c := t.change(latest); c != nil {
		held := *c < 0
		out.WarningHeld = &held
		if shares > 0 {
			impact := (*latest - *t.at) * shares
			out.PortfolioImpact = &impact
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
