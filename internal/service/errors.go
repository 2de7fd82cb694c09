package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Error taxonomy of the ledger.  Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrOwnershipMismatch = errors.New("ownership mismatch")
	ErrAlreadyInQueue    = errors.New("already in queue")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrInvalidOffer and ErrEventCancelled are kinds of ErrInvalidState.
	ErrInvalidOffer   = fmt.Errorf("%w: invalid or expired ticket offer", ErrInvalidState)
	ErrEventCancelled = fmt.Errorf("%w: event is cancelled", ErrInvalidState)
)

// notFound translates a repository miss into ErrNotFound naming what.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOwnershipMismatch):
		return "ownership_mismatch"
	case errors.Is(err, ErrAlreadyInQueue):
		return "already_in_queue"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
