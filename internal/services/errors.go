package services

import (
	"errors"
	"fmt"

	"github.com/tolkfield/api/internal/repositories"
)

// Sentinel errors surfaced by the booking lifecycle. Validation failures wrap
// ErrBookingInvalidInput with the offending field name.
var (
	ErrBookingInvalidInput = errors.New("booking: invalid input")
	ErrBookingNotFound     = errors.New("booking: not found")
	ErrBookingUnavailable  = errors.New("booking: temporarily unavailable")

	// ErrAlreadyBooked means the translator already holds a booking at the
	// same due instant.
	ErrAlreadyBooked = errors.New("booking: translator already booked at that time")
	// ErrAlreadyTaken means another translator accepted the job first.
	ErrAlreadyTaken = errors.New("booking: job already taken")
	// ErrCancellationWindowClosed rejects translator cancellations inside the
	// 24 hour window before the session.
	ErrCancellationWindowClosed = errors.New("booking: cancellation window closed")
	// ErrReopenFailed means the reopen write did not take effect.
	ErrReopenFailed = errors.New("booking: reopen failed")
)

// invalidField tags a validation failure with the field that caused it.
func invalidField(field string) error {
	return fmt.Errorf("%w: %s", ErrBookingInvalidInput, field)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// mapRepositoryError translates persistence failures into the service taxonomy.
func mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrBookingNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrAlreadyTaken, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrBookingUnavailable, err)
	default:
		return err
	}
}
