package notifications

import (
	"fmt"
	"strings"

	"github.com/aristath/watchtower/internal/domain"
)

// Format renders a notice as one line of plain text
func Format(n domain.Notice) string {
	switch n.Kind {
	case domain.NoticeAlert:
		a := n.Alert
		subject := a.TickerOrEmpty()
		if subject == "" {
			subject = fmt.Sprintf("portfolio %d", a.PortfolioID)
		}
		line := fmt.Sprintf("[%s L%d] %s: %s", a.Type, a.Level, subject, a.Message)
		if a.ActionSuggestion != "" {
			line += " " + a.ActionSuggestion
		}
		return line
	case domain.NoticeSignal:
		s := n.Signal
		return fmt.Sprintf("[%s %s] %s: %s", s.Type, s.Priority, s.Ticker, s.Message)
	}
	return ""
}

// FormatDigest renders a batch grouped by channel, immediate first
func FormatDigest(date string, notices []domain.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Watchtower notices for %s\n", date)
	for _, ch := range []domain.Channel{domain.ChannelImmediate, domain.ChannelDailyDigest, domain.ChannelWeeklyDigest} {
		header := false
		for _, n := range notices {
			if n.Channel != ch {
				continue
			}
			if !header {
				fmt.Fprintf(&b, "\n%s\n", channelTitle(ch))
				header = true
			}
			fmt.Fprintf(&b, "- %s\n", Format(n))
		}
	}
	return b.String()
}

func channelTitle(ch domain.Channel) string {
	switch ch {
	case domain.ChannelImmediate:
		return "Act now"
	case domain.ChannelDailyDigest:
		return "Today"
	case domain.ChannelWeeklyDigest:
		return "This week"
	}
	return string(ch)
}
