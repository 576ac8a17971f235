// Package notifications arbitrates pending alerts and signals into a bounded,
// prioritised daily notice set and delivers it to the configured notifiers.
package notifications

import (
	"sort"
	"time"

	"github.com/aristath/watchtower/internal/domain"
)

// Policy bounds how many notices go out and how often per key
type Policy struct {
	DailyCap       int           `yaml:"daily_cap"`
	ThrottleWindow time.Duration `yaml:"throttle_window"`
}

// DefaultPolicy returns a cap of five notices per day and a 24h throttle
func DefaultPolicy() Policy {
	return Policy{DailyCap: 5, ThrottleWindow: 24 * time.Hour}
}

// Validate checks the policy
func (p Policy) Validate() error {
	if p.DailyCap <= 0 {
		return &domain.ConfigurationError{Field: "notifications.daily_cap", Reason: "must be positive"}
	}
	if p.ThrottleWindow <= 0 {
		return &domain.ConfigurationError{Field: "notifications.throttle_window", Reason: "must be positive"}
	}
	return nil
}

// State is the arbiter's persisted memory: the recent log and the day's counter
type State struct {
	Log     []domain.NotificationLogEntry
	Counter domain.NoticeCounter
}

// Input is one arbitration request
type Input struct {
	Now time.Time
	// Date keys the daily counter; empty means the date of Now
	Date    string
	Pending []domain.Notice
	// Healthy routes high-priority signals to the immediate channel
	Healthy bool
}

// Outcome is the result of one arbitration. Deferred notices stay pending;
// suppressed notices are consumed without delivery.
type Outcome struct {
	Dispatched []domain.Notice
	Deferred   []domain.Notice
	Suppressed []domain.Notice
	State      State
}

// Arbitrate selects which pending notices go out now. It is a pure function
// of its arguments, so re-running it on the same state gives the same result.
func Arbitrate(p Policy, st State, in Input) Outcome {
	today := in.Date
	if today == "" {
		today = domain.DateKey(in.Now)
	}
	counter := st.Counter
	if counter.Date != today {
		counter = domain.NoticeCounter{Date: today}
	}

	log := pruneLog(st.Log, in.Now, p.ThrottleWindow)
	lastSent := make(map[string]time.Time, len(log))
	for _, e := range log {
		if t, ok := lastSent[e.Key]; !ok || e.NotifiedAt.After(t) {
			lastSent[e.Key] = e.NotifiedAt
		}
	}

	candidates := make([]domain.Notice, len(in.Pending))
	copy(candidates, in.Pending)
	sort.SliceStable(candidates, func(i, j int) bool { return before(candidates[i], candidates[j]) })

	var out Outcome
	for _, n := range candidates {
		key := n.ThrottleKey()
		if last, ok := lastSent[key]; ok && in.Now.Sub(last) < p.ThrottleWindow {
			out.Suppressed = append(out.Suppressed, n)
			continue
		}

		if !exempt(n) && counter.Count >= p.DailyCap {
			out.Deferred = append(out.Deferred, n)
			continue
		}

		n.Channel = channelFor(n, in.Healthy)
		counter.Count++
		lastSent[key] = in.Now
		log = append(log, domain.NotificationLogEntry{
			Key:        key,
			NotifiedAt: in.Now,
			Kind:       n.Kind,
			SourceID:   n.SourceID(),
			Channel:    n.Channel,
		})
		out.Dispatched = append(out.Dispatched, n)
	}

	out.State = State{Log: log, Counter: counter}
	return out
}

// exempt notices dispatch even when the daily cap is reached
func exempt(n domain.Notice) bool {
	return n.Kind == domain.NoticeAlert && n.Alert.Level >= domain.LevelSevere
}

// before orders alerts ahead of signals, then by urgency, age, ticker and id
func before(a, b domain.Notice) bool {
	if a.Kind != b.Kind {
		return a.Kind == domain.NoticeAlert
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra > rb
	}
	if ca, cb := a.CreatedAt(), b.CreatedAt(); !ca.Equal(cb) {
		return ca.Before(cb)
	}
	if ta, tb := a.ThrottleKey(), b.ThrottleKey(); ta != tb {
		return ta < tb
	}
	return a.SourceID() < b.SourceID()
}

func rank(n domain.Notice) int {
	switch n.Kind {
	case domain.NoticeAlert:
		return int(n.Alert.Level)
	case domain.NoticeSignal:
		return n.Signal.Priority.Rank()
	}
	return 0
}

func channelFor(n domain.Notice, healthy bool) domain.Channel {
	switch n.Kind {
	case domain.NoticeAlert:
		switch {
		case n.Alert.Level >= domain.LevelSevere:
			return domain.ChannelImmediate
		case n.Alert.Level == domain.LevelWarning:
			return domain.ChannelDailyDigest
		default:
			return domain.ChannelWeeklyDigest
		}
	case domain.NoticeSignal:
		switch n.Signal.Priority {
		case domain.PriorityHigh:
			if healthy {
				return domain.ChannelImmediate
			}
			return domain.ChannelDailyDigest
		case domain.PriorityMedium:
			return domain.ChannelDailyDigest
		case domain.PriorityLow:
			return domain.ChannelWeeklyDigest
		}
	}
	return domain.ChannelWeeklyDigest
}

// pruneLog keeps the entries still inside the throttle window
func pruneLog(log []domain.NotificationLogEntry, now time.Time, window time.Duration) []domain.NotificationLogEntry {
	kept := make([]domain.NotificationLogEntry, 0, len(log))
	for _, e := range log {
		if now.Sub(e.NotifiedAt) < window {
			kept = append(kept, e)
		}
	}
	return kept
}
