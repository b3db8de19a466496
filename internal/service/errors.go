package service

import (
	"errors"

	"parkwatch/internal/repository"
)

var (
	// ErrValidation covers request payloads that pass binding but fail a
	// semantic check (bad timestamp format, missing identifiers).
	ErrValidation = errors.New("invalid request data")

	// ErrNoSlotsAvailable is returned when a booking finds no free slot.
	ErrNoSlotsAvailable = errors.New("no free slots available")

	// ErrBookingNotActive is returned when a lifecycle operation targets a
	// booking that is already completed or cancelled.
	ErrBookingNotActive = errors.New("booking is not active")

	// ErrForbidden means the authenticated user does not own the resource.
	ErrForbidden = errors.New("operation not permitted for this user")
)

func isNotFoundLike(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrNoOpenLogEntry)
}
