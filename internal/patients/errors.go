package patients

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is wrapped by every validation failure.
	ErrInvalidRequest = errors.New("patients: invalid request")

	// ErrMalformedDocument marks an identification file without a body or name.
	// Registration continues without the file.
	ErrMalformedDocument = errors.New("patients: malformed identification document")

	ErrInvalidName    = fmt.Errorf("%w: name must be between 2 and 50 characters", ErrInvalidRequest)
	ErrInvalidEmail   = fmt.Errorf("%w: invalid email address", ErrInvalidRequest)
	ErrInvalidPhone   = fmt.Errorf("%w: invalid phone number", ErrInvalidRequest)
	ErrMissingUserID  = fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	ErrInvalidGender  = fmt.Errorf("%w: gender must be male, female or other", ErrInvalidRequest)
	ErrMissingConsent = fmt.Errorf("%w: treatment, disclosure and privacy consent are required", ErrInvalidRequest)
)
