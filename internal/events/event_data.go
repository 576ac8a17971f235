package events

import (
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PassStartedData contains data for PassStarted events
type PassStartedData struct {
	RunID   string `json:"run_id"`
	Date    string `json:"date"`
	Tickers int    `json:"tickers"`
}

// EventType returns the event type for PassStartedData
func (d *PassStartedData) EventType() EventType {
	return PassStarted
}

// PassCompletedData contains data for PassCompleted events
type PassCompletedData struct {
	RunID    string        `json:"run_id"`
	Date     string        `json:"date"`
	Status   string        `json:"status"`
	Gaps     int           `json:"gaps"`
	Duration time.Duration `json:"duration"`
}

// EventType returns the event type for PassCompletedData
func (d *PassCompletedData) EventType() EventType {
	return PassCompleted
}

// DataGapData contains data for DataGapDetected events
type DataGapData struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// EventType returns the event type for DataGapData
func (d *DataGapData) EventType() EventType {
	return DataGapDetected
}

// HealthScoredData contains data for HealthScored events
type HealthScoredData struct {
	PortfolioID int64   `json:"portfolio_id"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
}

// EventType returns the event type for HealthScoredData
func (d *HealthScoredData) EventType() EventType {
	return HealthScored
}

// SignalsUpdatedData contains data for SignalsUpdated events
type SignalsUpdatedData struct {
	Created     int `json:"created"`
	Expired     int `json:"expired"`
	Invalidated int `json:"invalidated"`
}

// EventType returns the event type for SignalsUpdatedData
func (d *SignalsUpdatedData) EventType() EventType {
	return SignalsUpdated
}

// AlertsUpdatedData contains data for AlertsUpdated events
type AlertsUpdatedData struct {
	PortfolioID int64 `json:"portfolio_id"`
	Created     int   `json:"created"`
	Escalated   int   `json:"escalated"`
	Resolved    int   `json:"resolved"`
}

// EventType returns the event type for AlertsUpdatedData
func (d *AlertsUpdatedData) EventType() EventType {
	return AlertsUpdated
}

// NoticesDispatchedData carries the notices the arbiter released
type NoticesDispatchedData struct {
	Date    string          `json:"date"`
	Notices []domain.Notice `json:"notices"`
}

// EventType returns the event type for NoticesDispatchedData
func (d *NoticesDispatchedData) EventType() EventType {
	return NoticesDispatched
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
