package model

import "time"

const (
	DefaultDailyLimit         = 100
	DefaultScheduleExpression = "*/10 * * * *"
)

// DispatchConfig is the persisted, operator-editable part of the dispatch settings.
// It is re-read at the start of every cycle.
type DispatchConfig struct {
	DailyLimit         int       `db:"daily_limit" json:"daily_limit"`
	ScheduleExpression string    `db:"schedule_expression" json:"schedule_expression"`
	Enabled            bool      `db:"enabled" json:"enabled"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		DailyLimit:         DefaultDailyLimit,
		ScheduleExpression: DefaultScheduleExpression,
		Enabled:            true,
	}
}
