// internal/model/queued_message.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxAttempts is applied when a message is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

type Priority string

const (
	PriorityNow      Priority = "now"
	PriorityHigh     Priority = "high"
	PriorityStandard Priority = "standard"
	PriorityLow      Priority = "low"
)

// AllPriorities lists priorities from most to least urgent.
var AllPriorities = []Priority{PriorityNow, PriorityHigh, PriorityStandard, PriorityLow}

// Rank orders priorities for retrieval: lower drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityNow:
		return 0
	case PriorityHigh:
		return 1
	case PriorityStandard:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityNow, PriorityHigh, PriorityStandard, PriorityLow:
		return true
	}
	return false
}

// ParsePriority accepts any casing; empty means standard.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityStandard, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

type QueuedMessage struct {
	ID            string          `db:"id" json:"id"`
	To            string          `db:"recipient" json:"to"`
	From          string          `db:"sender" json:"from,omitempty"`
	Subject       string          `db:"subject" json:"subject"`
	HTML          string          `db:"body" json:"html"`
	Priority      Priority        `db:"priority" json:"priority"`
	Status        Status          `db:"status" json:"status"`
	ScheduledFor  *time.Time      `db:"scheduled_for" json:"scheduled_for,omitempty"`
	BatchID       *string         `db:"batch_id" json:"batch_id,omitempty"`
	BatchPosition *int            `db:"batch_position" json:"batch_position,omitempty"`
	Rules         *BlacklistRules `db:"blacklist_rules" json:"blacklist_rules,omitempty"`
	Attempts      int             `db:"attempts" json:"attempts"`
	MaxAttempts   int             `db:"max_attempts" json:"max_attempts"`
	LastError     string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// InBatch reports whether the message is one ordered member of a named batch.
func (m *QueuedMessage) InBatch() bool {
	return m.BatchID != nil && *m.BatchID != ""
}

// Exhausted reports whether no send attempts remain.
func (m *QueuedMessage) Exhausted() bool {
	return m.Attempts >= m.MaxAttempts
}

// Sender returns the from address, falling back to def.
func (m *QueuedMessage) Sender(def string) string {
	if strings.TrimSpace(m.From) != "" {
		return m.From
	}
	return def
}
