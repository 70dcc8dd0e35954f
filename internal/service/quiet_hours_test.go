package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 3, 10, hh, mm, 0, 0, time.UTC) // Monday
}

func TestQuietHoursEvaluate(t *testing.T) {
	qh := service.NewQuietHours(time.UTC)

	tests := []struct {
		name  string
		rules *model.BlacklistRules
		now   time.Time
		allow bool
		rule  string
	}{
		{"no rules", nil, at(3, 0), true, ""},
		{"empty rules", &model.BlacklistRules{}, at(3, 0), true, ""},
		{"blocked weekday", &model.BlacklistRules{DaysOfWeek: []time.Weekday{time.Monday}}, at(12, 0), false, "day_of_week"},
		{"other weekday", &model.BlacklistRules{DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday}}, at(12, 0), true, ""},
		{"inside daytime window", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "12:00", End: "13:00"}}}, at(12, 30), false, "time_range"},
		{"window end is inclusive", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "12:00", End: "13:00"}}}, at(13, 0), false, "time_range"},
		{"after daytime window", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "12:00", End: "13:00"}}}, at(13, 1), true, ""},
		{"overnight before midnight", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "22:00", End: "06:00"}}}, at(23, 15), false, "time_range"},
		{"overnight after midnight", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "22:00", End: "06:00"}}}, at(5, 59), false, "time_range"},
		{"overnight daytime", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "22:00", End: "06:00"}}}, at(12, 0), true, ""},
		{"malformed window ignored", &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "late", End: "06:00"}}}, at(3, 0), true, ""},
		{"date-only range covers the day", &model.BlacklistRules{DateRanges: []model.DateRange{{StartDate: "2025-03-10", EndDate: "2025-03-10"}}}, at(23, 59), false, "date_range"},
		{"date range ended", &model.BlacklistRules{DateRanges: []model.DateRange{{StartDate: "2025-03-01", EndDate: "2025-03-09"}}}, at(0, 0), true, ""},
		{"rfc3339 range", &model.BlacklistRules{DateRanges: []model.DateRange{{StartDate: "2025-03-10T09:00:00Z", EndDate: "2025-03-10T11:00:00Z"}}}, at(10, 0), false, "date_range"},
		{"malformed date ignored", &model.BlacklistRules{DateRanges: []model.DateRange{{StartDate: "soon", EndDate: "later"}}}, at(10, 0), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := qh.Evaluate(tt.rules, tt.now)
			assert.Equal(t, tt.allow, v.Allowed)
			assert.Equal(t, tt.rule, v.Rule)
		})
	}
}

func TestQuietHoursDateRangeReason(t *testing.T) {
	qh := service.NewQuietHours(time.UTC)
	v := qh.Evaluate(&model.BlacklistRules{
		DateRanges: []model.DateRange{{StartDate: "2025-03-10", EndDate: "2025-03-12", Reason: "holiday freeze"}},
	}, at(9, 0))
	assert.False(t, v.Allowed)
	assert.Equal(t, "holiday freeze", v.Reason)
}

func TestQuietHoursUsesDispatchTimezone(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	qh := service.NewQuietHours(nairobi)
	rules := &model.BlacklistRules{TimeRanges: []model.TimeRange{{Start: "22:00", End: "06:00"}}}

	// 20:00 UTC is 23:00 in UTC+3.
	assert.False(t, qh.Evaluate(rules, time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)).Allowed)
	assert.True(t, service.NewQuietHours(time.UTC).Evaluate(rules, time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)).Allowed)
}

func TestCanSendIsDeterministic(t *testing.T) {
	qh := service.NewQuietHours(time.UTC)
	msg := &model.QueuedMessage{Rules: &model.BlacklistRules{
		DaysOfWeek: []time.Weekday{time.Sunday},
		TimeRanges: []model.TimeRange{{Start: "22:00", End: "06:00"}},
	}}
	for _, now := range []time.Time{at(3, 0), at(12, 0), at(22, 0)} {
		first := qh.CanSend(msg, now)
		assert.Equal(t, first, qh.CanSend(msg, now))
	}
	assert.False(t, qh.CanSend(nil, at(12, 0)))
}
