package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a document, identity or file does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrConflict is returned when a create collides with an existing record.
	ErrConflict = errors.New("remote: conflict")

	// ErrRemoteService covers every other failure of the remote service.
	ErrRemoteService = errors.New("remote: service error")
)

// Error carries the remote status alongside the error kind.
type Error struct {
	Op      string
	Status  int
	Message string
	Kind    error
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("remote: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindForStatus maps an HTTP-ish status code to an error kind.
func KindForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrRemoteService
	}
}

// Wrap classifies err for op. Errors that already carry a kind keep it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrRemoteService) {
		return err
	}
	return &Error{Op: op, Kind: ErrRemoteService, Cause: err}
}

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
