package model

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Terminal statuses are never re-read or resent.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var AllStatuses = []Status{
	StatusPending,
	StatusScheduled,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

type Transition struct {
	From Status
	To   Status
}

var ValidTransitions = []Transition{
	{From: StatusScheduled, To: StatusPending},
	{From: StatusPending, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusPending},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusPending, To: StatusScheduled},
	{From: StatusScheduled, To: StatusScheduled},
}

func IsValidTransition(from, to Status) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
