package domain

import (
	"fmt"
	"time"
)

// NoticeKind tags which variant a Notice carries
type NoticeKind string

const (
	NoticeAlert  NoticeKind = "alert"
	NoticeSignal NoticeKind = "signal"
)

// Channel is the delivery route chosen for a dispatched notice
type Channel string

const (
	ChannelImmediate    Channel = "immediate"
	ChannelDailyDigest  Channel = "daily_digest"
	ChannelWeeklyDigest Channel = "weekly_digest"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	switch c {
	case ChannelImmediate, ChannelDailyDigest, ChannelWeeklyDigest:
		return true
	}
	return false
}

// ParseChannel converts a stored value into a Channel
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Notice is either an Alert or a Signal awaiting arbitration.
// Exactly one of Alert and Signal is set, matching Kind.
type Notice struct {
	Alert   *Alert     `json:"alert,omitempty"`
	Signal  *Signal    `json:"signal,omitempty"`
	Kind    NoticeKind `json:"kind"`
	Channel Channel    `json:"channel,omitempty"`
}

// AlertNotice wraps an alert
func AlertNotice(a Alert) Notice {
	return Notice{Kind: NoticeAlert, Alert: &a}
}

// SignalNotice wraps a signal
func SignalNotice(s Signal) Notice {
	return Notice{Kind: NoticeSignal, Signal: &s}
}

// SourceID returns the id of the wrapped alert or signal
func (n Notice) SourceID() int64 {
	switch n.Kind {
	case NoticeAlert:
		return n.Alert.ID
	case NoticeSignal:
		return n.Signal.ID
	}
	return 0
}

// CreatedAt returns the creation time of the wrapped record
func (n Notice) CreatedAt() time.Time {
	switch n.Kind {
	case NoticeAlert:
		return n.Alert.CreatedAt
	case NoticeSignal:
		return n.Signal.CreatedAt
	}
	return time.Time{}
}

// Ticker returns the wrapped ticker, "" for portfolio-wide alerts
func (n Notice) Ticker() string {
	switch n.Kind {
	case NoticeAlert:
		return n.Alert.TickerOrEmpty()
	case NoticeSignal:
		return n.Signal.Ticker
	}
	return ""
}

// ThrottleKey is the per-ticker key used for the 24h recency limit.
// Portfolio-wide alerts are keyed by portfolio and rule instead.
func (n Notice) ThrottleKey() string {
	if n.Kind == NoticeAlert && n.Alert.Ticker == nil {
		return fmt.Sprintf("portfolio:%d:%s", n.Alert.PortfolioID, n.Alert.Type)
	}
	return n.Ticker()
}

// NotificationLogEntry records when a throttle key was last notified
type NotificationLogEntry struct {
	NotifiedAt time.Time  `json:"notified_at"`
	Key        string     `json:"key"`
	Kind       NoticeKind `json:"kind"`
	Channel    Channel    `json:"channel"`
	SourceID   int64      `json:"source_id"`
}

// NoticeCounter counts non-exempt and exempt dispatches for one calendar date
type NoticeCounter struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DateKey formats t as the calendar date used for counters and dispatch runs
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
