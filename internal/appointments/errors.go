package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is wrapped by every validation failure.
	ErrInvalidRequest = errors.New("appointments: invalid request")

	// ErrUpdateNoDocument is returned when the remote update yields no record.
	ErrUpdateNoDocument = errors.New("appointments: update returned no document")

	ErrMissingUserID           = fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	ErrMissingPatientID        = fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	ErrMissingPhysician        = fmt.Errorf("%w: primary_physician is required", ErrInvalidRequest)
	ErrMissingSchedule         = fmt.Errorf("%w: schedule is required", ErrInvalidRequest)
	ErrScheduleInPast          = fmt.Errorf("%w: schedule is in the past", ErrInvalidRequest)
	ErrMissingReason           = fmt.Errorf("%w: reason is required", ErrInvalidRequest)
	ErrMissingAppointmentID    = fmt.Errorf("%w: appointment_id is required", ErrInvalidRequest)
	ErrMissingCancellationNote = fmt.Errorf("%w: cancellation_reason is required to cancel", ErrInvalidRequest)
	ErrEmptyUpdate             = fmt.Errorf("%w: no fields to update", ErrInvalidRequest)
	ErrUnknownStatus           = fmt.Errorf("%w: unknown status", ErrInvalidRequest)
)
