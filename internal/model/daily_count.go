package model

import "time"

// DayLayout keys DailyCount rows by calendar day.
const DayLayout = "2006-01-02"

type DailyCount struct {
	Day   string `db:"day" json:"day"`
	Count int    `db:"sent_count" json:"count"`
	Limit int    `db:"daily_limit" json:"limit"`
}

// Remaining never goes below zero.
func (d DailyCount) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// DayKey returns the calendar-day key of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}
