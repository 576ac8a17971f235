package domain

import (
	"fmt"
	"time"
)

// AlertType is the closed set of defensive warning rules
type AlertType string

const (
	AlertDailyDrop         AlertType = "W-01"
	AlertStopLoss          AlertType = "W-02"
	AlertDeepStopLoss      AlertType = "W-03"
	AlertHealthDanger      AlertType = "W-04"
	AlertHealthCaution     AlertType = "W-05"
	AlertTickerConcentrate AlertType = "W-06"
	AlertSectorConcentrate AlertType = "W-07"
	AlertIndexCrash        AlertType = "W-08"
	AlertBroadDecline      AlertType = "W-09"
	AlertStaleLoss         AlertType = "W-10"
)

// AlertTypes lists every alert type in rule order
var AlertTypes = []AlertType{
	AlertDailyDrop,
	AlertStopLoss,
	AlertDeepStopLoss,
	AlertHealthDanger,
	AlertHealthCaution,
	AlertTickerConcentrate,
	AlertSectorConcentrate,
	AlertIndexCrash,
	AlertBroadDecline,
	AlertStaleLoss,
}

// Valid reports whether t is a known alert type
func (t AlertType) Valid() bool {
	switch t {
	case AlertDailyDrop, AlertStopLoss, AlertDeepStopLoss, AlertHealthDanger, AlertHealthCaution,
		AlertTickerConcentrate, AlertSectorConcentrate, AlertIndexCrash, AlertBroadDecline, AlertStaleLoss:
		return true
	}
	return false
}

// PortfolioWide reports whether alerts of this type carry no ticker
func (t AlertType) PortfolioWide() bool {
	switch t {
	case AlertHealthDanger, AlertHealthCaution, AlertSectorConcentrate, AlertIndexCrash, AlertBroadDecline:
		return true
	}
	return false
}

// ParseAlertType converts a stored value into an AlertType
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown alert type %q", s)
	}
	return t, nil
}

// AlertLevel is the severity of an alert, 1 (info) to 4 (critical)
type AlertLevel int

const (
	LevelInfo     AlertLevel = 1
	LevelWarning  AlertLevel = 2
	LevelSevere   AlertLevel = 3
	LevelCritical AlertLevel = 4
)

// Valid reports whether the level is within 1..4
func (l AlertLevel) Valid() bool {
	return l >= LevelInfo && l <= LevelCritical
}

// Alert is a defensive warning about a holding or a whole portfolio.
// Ticker is nil for portfolio-wide alerts.
type Alert struct {
	CreatedAt        time.Time              `json:"created_at"`
	ResolvedAt       *time.Time             `json:"resolved_at,omitempty"`
	DispatchedAt     *time.Time             `json:"dispatched_at,omitempty"`
	Ticker           *string                `json:"ticker"`
	Detail           map[string]interface{} `json:"detail,omitempty"`
	Type             AlertType              `json:"alert_type"`
	Message          string                 `json:"message"`
	ActionSuggestion string                 `json:"action_suggestion"`
	ID               int64                  `json:"id"`
	PortfolioID      int64                  `json:"portfolio_id"`
	Level            AlertLevel             `json:"level"`
	IsRead           bool                   `json:"is_read"`
	IsResolved       bool                   `json:"is_resolved"`
}

// TickerOrEmpty returns the alert ticker or "" for portfolio-wide alerts
func (a Alert) TickerOrEmpty() string {
	if a.Ticker == nil {
		return ""
	}
	return *a.Ticker
}

// Key identifies the open-alert slot this alert occupies
func (a Alert) Key() AlertKey {
	return AlertKey{PortfolioID: a.PortfolioID, Ticker: a.TickerOrEmpty(), Type: a.Type}
}

// AlertKey is the uniqueness key for open alerts
type AlertKey struct {
	Ticker      string
	Type        AlertType
	PortfolioID int64
}

// String formats the key for logs
func (k AlertKey) String() string {
	if k.Ticker == "" {
		return fmt.Sprintf("%d/%s", k.PortfolioID, k.Type)
	}
	return fmt.Sprintf("%d/%s/%s", k.PortfolioID, k.Ticker, k.Type)
}
