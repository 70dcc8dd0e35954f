package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycleSummaryText(t *testing.T) {
	s := CycleSummary{
		Day:          "2025-03-10",
		LimitReached: true,
		Limit:        100,
		DailyCount:   100,
		FinishedAt:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	txt := s.Text()
	assert.Contains(t, txt, "Daily email limit reached (100/100) for 2025-03-10")
	assert.Contains(t, txt, "at: 2025-03-10T09:00:00Z")
	assert.False(t, s.HasActivity())

	s = CycleSummary{Skipped: 3}
	assert.False(t, s.HasActivity())

	s = CycleSummary{Claimed: 2, Sent: 1, Failed: 1, Skipped: 3}
	assert.True(t, s.HasActivity())
	assert.Contains(t, s.Text(), "sent: 1, failed: 1")
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, IsValidTransition(StatusPending, StatusProcessing))
	assert.True(t, IsValidTransition(StatusProcessing, StatusFailed))
	assert.False(t, IsValidTransition(StatusCompleted, StatusPending))
	assert.False(t, IsValidTransition(StatusFailed, StatusPending))
	assert.False(t, IsValidTransition(StatusScheduled, StatusProcessing))
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusScheduled.Terminal())
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	assert.NoError(t, err)
	assert.Equal(t, PriorityStandard, p)

	p, err = ParsePriority(" HIGH ")
	assert.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)

	assert.Less(t, PriorityNow.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityStandard.Rank(), PriorityLow.Rank())
}

func TestBlacklistRulesValidate(t *testing.T) {
	ok := &BlacklistRules{
		DaysOfWeek: []time.Weekday{time.Sunday},
		TimeRanges: []TimeRange{{Start: "22:00", End: "06:30"}},
		DateRanges: []DateRange{{StartDate: "2025-12-24", EndDate: "2025-12-26"}},
	}
	assert.NoError(t, ok.Validate())

	bad := &BlacklistRules{
		DaysOfWeek: []time.Weekday{9},
		TimeRanges: []TimeRange{{Start: "24:00", End: "6"}},
		DateRanges: []DateRange{{StartDate: "2025-12-26", EndDate: "2025-12-24"}},
	}
	err := bad.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "days_of_week")
		assert.Contains(t, err.Error(), "time_ranges[0].start")
		assert.Contains(t, err.Error(), "time_ranges[0].end")
		assert.Contains(t, err.Error(), "end_date before start_date")
	}
}

func TestDateRangeBoundsCoverWholeDay(t *testing.T) {
	dr := DateRange{StartDate: "2025-12-24", EndDate: "2025-12-24"}
	start, end, err := dr.Bounds(time.UTC)
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.After(time.Date(2025, 12, 24, 23, 59, 59, 0, time.UTC)))
	assert.True(t, end.Before(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)))
}

func TestDailyCountRemainingFloor(t *testing.T) {
	assert.Equal(t, 0, DailyCount{Count: 120, Limit: 100}.Remaining())
	assert.Equal(t, 40, DailyCount{Count: 60, Limit: 100}.Remaining())
}
