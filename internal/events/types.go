package events

import "github.com/aristath/watchtower/internal/utils"

// EventType identifies what happened
type EventType string

const (
	// PassStarted fires when a daily pass begins
	PassStarted EventType = "PASS_STARTED"
	// PassCompleted fires when a daily pass ends, successfully or stale
	PassCompleted EventType = "PASS_COMPLETED"
	// DataGapDetected fires once per ticker skipped for missing market data
	DataGapDetected EventType = "DATA_GAP_DETECTED"
	// HealthScored fires for each portfolio risk snapshot
	HealthScored EventType = "HEALTH_SCORED"
	// SignalsUpdated fires after signal reconciliation is persisted
	SignalsUpdated EventType = "SIGNALS_UPDATED"
	// AlertsUpdated fires after alert reconciliation is persisted
	AlertsUpdated EventType = "ALERTS_UPDATED"
	// NoticesDispatched fires after the arbiter commits a dispatch
	NoticesDispatched EventType = "NOTICES_DISPATCHED"
	// ErrorOccurred fires for errors worth surfacing to observers
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// Types lists every event type a client may subscribe to
var Types = []EventType{
	PassStarted,
	PassCompleted,
	DataGapDetected,
	HealthScored,
	SignalsUpdated,
	AlertsUpdated,
	NoticesDispatched,
	ErrorOccurred,
}

// ParseTypes reads a comma-separated subscription filter such as
// "NOTICES_DISPATCHED,alerts_updated". Empty input yields nil.
func ParseTypes(s string) ([]EventType, error) {
	known := make([]string, len(Types))
	for i, t := range Types {
		known[i] = string(t)
	}
	values, err := utils.ParseCSVOf(s, known)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]EventType, len(values))
	for i, v := range values {
		out[i] = EventType(v)
	}
	return out, nil
}
