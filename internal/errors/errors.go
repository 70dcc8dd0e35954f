// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage wraps enqueue validation failures.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrLeaseHeld is returned when another owner is running a dispatch cycle.
	ErrLeaseHeld = errors.New("dispatch lease held by another owner")
	// ErrCycleRunning is returned when a dispatch cycle is already in progress in this process.
	ErrCycleRunning = errors.New("dispatch cycle already running")
	// ErrInvalidConfig wraps rejected dispatch configuration updates.
	ErrInvalidConfig = errors.New("invalid dispatch config")
	// ErrConfigNotFound means no dispatch configuration row has been persisted yet.
	ErrConfigNotFound = errors.New("dispatch config not found")
)

// ErrMessageNotFound is returned when a queued message id does not exist.
type ErrMessageNotFound struct {
	MessageID string
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("queued message with ID %s not found", e.MessageID)
}

// Helper constructor
func NewMessageNotFound(id string) error {
	return &ErrMessageNotFound{MessageID: id}
}

// IsNotFound reports whether err (or anything it wraps) is an ErrMessageNotFound.
func IsNotFound(err error) bool {
	var nf *ErrMessageNotFound
	return errors.As(err, &nf)
}

// Invalid wraps a validation problem so callers can match ErrInvalidMessage.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}
