package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/carepulse/internal/appointments"
	"github.com/wolfman30/carepulse/internal/patients"
	"github.com/wolfman30/carepulse/internal/remote"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError maps service errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, appointments.ErrInvalidRequest), errors.Is(err, patients.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, remote.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, appointments.ErrUpdateNoDocument), errors.Is(err, remote.ErrRemoteService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal detail on 5xx responses.
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	switch status {
	case http.StatusBadGateway:
		message = "upstream data service failed"
	case http.StatusInternalServerError:
		message = "internal error"
	}
	jsonError(w, message, status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

const maxJSONBody = 1 << 20
