package domain

import (
	"fmt"
	"time"
)

// SignalType identifies a buy-opportunity detection rule
type SignalType string

const (
	SignalGoldenCross      SignalType = "golden_cross"
	SignalVolumeSpike      SignalType = "volume_spike"
	SignalRSIReversal      SignalType = "rsi_reversal"
	SignalValueOpportunity SignalType = "value_opportunity"
	SignalDividendChance   SignalType = "dividend_chance"
)

// SignalTypes lists every signal type in declaration order
var SignalTypes = []SignalType{
	SignalGoldenCross,
	SignalVolumeSpike,
	SignalRSIReversal,
	SignalValueOpportunity,
	SignalDividendChance,
}

// Valid reports whether t is a known signal type
func (t SignalType) Valid() bool {
	switch t {
	case SignalGoldenCross, SignalVolumeSpike, SignalRSIReversal, SignalValueOpportunity, SignalDividendChance:
		return true
	}
	return false
}

// Priority returns the fixed priority of the signal type
func (t SignalType) Priority() Priority {
	switch t {
	case SignalGoldenCross, SignalVolumeSpike:
		return PriorityHigh
	case SignalRSIReversal, SignalValueOpportunity:
		return PriorityMedium
	case SignalDividendChance:
		return PriorityLow
	}
	return PriorityLow
}

// ParseSignalType converts a stored value into a SignalType
func ParseSignalType(s string) (SignalType, error) {
	t := SignalType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown signal type %q", s)
	}
	return t, nil
}

// Priority orders signals for notification
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a comparable weight; higher is more urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// ParsePriority converts a stored value into a Priority
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown signal priority %q", s)
	}
	return p, nil
}

// Signal is a detected buy opportunity with a bounded validity window
type Signal struct {
	CreatedAt     time.Time              `json:"created_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	InvalidatedAt *time.Time             `json:"invalidated_at,omitempty"`
	DispatchedAt  *time.Time             `json:"dispatched_at,omitempty"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
	Ticker        string                 `json:"ticker"`
	Type          SignalType             `json:"signal_type"`
	Priority      Priority               `json:"priority"`
	Message       string                 `json:"message"`
	ID            int64                  `json:"id"`
	IsValid       bool                   `json:"is_valid"`
}

// ActiveAt reports whether the signal is still valid at t
func (s Signal) ActiveAt(t time.Time) bool {
	return s.IsValid && t.Before(s.ExpiresAt)
}
