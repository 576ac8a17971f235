package pipeline

import (
	"time"
)

// Pass statuses
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusPartial = "partial" // completed with data gaps
	StatusStale   = "stale"   // aborted; stored results are from an earlier pass
)

// Gap is one data gap recorded during a pass
type Gap struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Counts tallies what a pass produced
type Counts struct {
	Tickers            int `json:"tickers"`
	Scored             int `json:"scored"`
	Portfolios         int `json:"portfolios"`
	SignalsCreated     int `json:"signals_created"`
	SignalsExpired     int `json:"signals_expired"`
	SignalsInvalidated int `json:"signals_invalidated"`
	AlertsCreated      int `json:"alerts_created"`
	AlertsEscalated    int `json:"alerts_escalated"`
	AlertsResolved     int `json:"alerts_resolved"`
	Dispatched         int `json:"dispatched"`
	Deferred           int `json:"deferred"`
	Suppressed         int `json:"suppressed"`
}

// Summary is the record of one daily pass
type Summary struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	RunID    string    `json:"run_id"`
	Date     string    `json:"date"`
	Status   string    `json:"status"`
	Gaps     []Gap     `json:"gaps"`
	Errors   []string  `json:"errors"`
	Counts   Counts    `json:"counts"`
	Healthy  bool      `json:"healthy"`
}

// Duration returns how long the pass took
func (s *Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
