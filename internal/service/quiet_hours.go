package service

import (
	"fmt"
	"time"

	"github.com/unclebandit/mail-dispatch/internal/model"
)

// Verdict explains a quiet-hours decision. Rule names the kind of rule that blocked.
type Verdict struct {
	Allowed bool
	Rule    string
	Reason  string
}

var allowed = Verdict{Allowed: true}

// QuietHours evaluates per-message blackout rules in a fixed timezone.
// It has no state and performs no I/O.
type QuietHours struct {
	Location *time.Location
}

func NewQuietHours(loc *time.Location) *QuietHours {
	if loc == nil {
		loc = time.Local
	}
	return &QuietHours{Location: loc}
}

// CanSend reports whether msg may be sent at now.
func (q *QuietHours) CanSend(msg *model.QueuedMessage, now time.Time) bool {
	if msg == nil {
		return false
	}
	return q.Evaluate(msg.Rules, now).Allowed
}

// Evaluate checks date ranges, then weekdays, then time-of-day windows.
// Any matching rule blocks. Entries that fail to parse are ignored.
func (q *QuietHours) Evaluate(rules *model.BlacklistRules, now time.Time) Verdict {
	if rules.Empty() {
		return allowed
	}
	local := now.In(q.location())

	for _, dr := range rules.DateRanges {
		start, end, err := dr.Bounds(q.location())
		if err != nil {
			continue
		}
		if !local.Before(start) && !local.After(end) {
			reason := dr.Reason
			if reason == "" {
				reason = fmt.Sprintf("blackout %s to %s", dr.StartDate, dr.EndDate)
			}
			return Verdict{Rule: "date_range", Reason: reason}
		}
	}

	for _, d := range rules.DaysOfWeek {
		if d == local.Weekday() {
			return Verdict{Rule: "day_of_week", Reason: "no sends on " + d.String()}
		}
	}

	cur := local.Hour()*60 + local.Minute()
	for _, tr := range rules.TimeRanges {
		start, err := model.ParseClock(tr.Start)
		if err != nil {
			continue
		}
		end, err := model.ParseClock(tr.End)
		if err != nil {
			continue
		}
		if inWindow(cur, start, end) {
			return Verdict{Rule: "time_range", Reason: fmt.Sprintf("quiet hours %s-%s", tr.Start, tr.End)}
		}
	}
	return allowed
}

// inWindow compares minutes since midnight. start > end wraps past midnight.
func inWindow(cur, start, end int) bool {
	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

func (q *QuietHours) location() *time.Location {
	if q.Location == nil {
		return time.Local
	}
	return q.Location
}
