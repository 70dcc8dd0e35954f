package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// BlacklistRules are per-message quiet-hours restrictions. Any matching rule blocks a send.
type BlacklistRules struct {
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`
	TimeRanges []TimeRange    `json:"time_ranges,omitempty" yaml:"time_ranges,omitempty"`
	DateRanges []DateRange    `json:"date_ranges,omitempty" yaml:"date_ranges,omitempty"`
}

// TimeRange is an HH:MM window. Start after End wraps past midnight.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// DateRange is an absolute blackout window. Dates are YYYY-MM-DD (whole day) or RFC3339.
type DateRange struct {
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (r *BlacklistRules) Empty() bool {
	return r == nil || (len(r.DaysOfWeek) == 0 && len(r.TimeRanges) == 0 && len(r.DateRanges) == 0)
}

func (r *BlacklistRules) Validate() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			errs = append(errs, fmt.Errorf("days_of_week: %d out of range 0-6", d))
		}
	}
	for i, tr := range r.TimeRanges {
		if _, err := ParseClock(tr.Start); err != nil {
			errs = append(errs, fmt.Errorf("time_ranges[%d].start: %w", i, err))
		}
		if _, err := ParseClock(tr.End); err != nil {
			errs = append(errs, fmt.Errorf("time_ranges[%d].end: %w", i, err))
		}
	}
	for i, dr := range r.DateRanges {
		start, end, err := dr.Bounds(time.UTC)
		if err != nil {
			errs = append(errs, fmt.Errorf("date_ranges[%d]: %w", i, err))
			continue
		}
		if end.Before(start) {
			errs = append(errs, fmt.Errorf("date_ranges[%d]: end_date before start_date", i))
		}
	}
	return errors.Join(errs...)
}

// Bounds resolves the range to instants in loc. A date-only end covers the whole day.
func (d DateRange) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	start, _, err := parseDate(d.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, endDateOnly, err := parseDate(d.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	if endDateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return start, end, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errors.New("date required")
	}
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC3339)", s)
	}
	return t, false, nil
}

// ParseClock returns minutes since midnight for an HH:MM string.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	return h*60 + m, nil
}
