package model

import (
	"fmt"
	"strings"
	"time"
)

// CycleSummary is the outcome of one dispatch cycle.
type CycleSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Day        string    `json:"day"`

	Disabled     bool `json:"disabled,omitempty"`
	LimitReached bool `json:"limit_reached,omitempty"`

	Limit          int `json:"limit"`
	CapacityBefore int `json:"capacity_before"`
	CapacityAfter  int `json:"capacity_after"`
	DailyCount     int `json:"daily_count"`

	Recovered   int `json:"recovered"`
	Expired     int `json:"expired"`
	Promoted    int `json:"promoted"`
	Claimed     int `json:"claimed"`
	Sent        int `json:"sent"`
	Retried     int `json:"retried"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Rescheduled int `json:"rescheduled"`

	ScheduleExpression string `json:"schedule_expression,omitempty"`
}

// HasActivity reports whether the cycle changed anything worth reporting.
// Quiet-hours skips alone change nothing and recur every tick until the window opens.
func (s CycleSummary) HasActivity() bool {
	return s.Claimed > 0 || s.Rescheduled > 0 || s.Recovered > 0 || s.Expired > 0
}

// Text renders the summary for chat-style alert channels.
func (s CycleSummary) Text() string {
	var b strings.Builder
	switch {
	case s.Disabled:
		b.WriteString("Email dispatch is disabled\n")
	case s.LimitReached:
		fmt.Fprintf(&b, "Daily email limit reached (%d/%d) for %s\n", s.DailyCount, s.Limit, s.Day)
	default:
		fmt.Fprintf(&b, "Email dispatch cycle %s\n", s.Day)
	}
	fmt.Fprintf(&b, "sent: %d, failed: %d, retrying: %d, skipped: %d, rescheduled: %d\n",
		s.Sent, s.Failed, s.Retried, s.Skipped, s.Rescheduled)
	if s.Recovered > 0 || s.Expired > 0 {
		fmt.Fprintf(&b, "recovered: %d, expired: %d\n", s.Recovered, s.Expired)
	}
	fmt.Fprintf(&b, "daily count: %d/%d (remaining %d)\n", s.DailyCount, s.Limit, s.CapacityAfter)
	b.WriteString("at: " + s.FinishedAt.UTC().Format(time.RFC3339))
	return b.String()
}
