package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/carepulse/internal/appointments"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// AppointmentsHandler serves the appointment endpoints.
type AppointmentsHandler struct {
	svc    *appointments.Service
	logger *logging.Logger
}

// NewAppointmentsHandler creates an appointments handler.
func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: appointments service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// CreateAppointmentResponse is the created record plus the confirmation page.
type CreateAppointmentResponse struct {
	*appointments.Appointment
	SuccessPath string `json:"success_path"`
}

// UpdateAppointmentResponse carries the notification failure when the
// record was written but its notification was not delivered.
type UpdateAppointmentResponse struct {
	*appointments.Appointment
	NotificationError string `json:"notification_error,omitempty"`
}

// SuccessPath is the confirmation page shown after booking.
func SuccessPath(userID, appointmentID string) string {
	return fmt.Sprintf("/patients/%s/new-appointment/success?appointmentId=%s",
		url.PathEscape(userID), url.QueryEscape(appointmentID))
}

// Create handles POST /appointments.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req appointments.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
		Appointment: appt,
		SuccessPath: SuccessPath(appt.UserID, appt.ID),
	})
}

// Get handles GET /appointments/{appointmentID}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Update handles PATCH /appointments/{appointmentID}.
func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req appointments.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = chi.URLParam(r, "appointmentID")

	appt, err := h.svc.Update(r.Context(), req)
	if err != nil && appt != nil && errors.Is(err, notify.ErrNotificationFailed) {
		h.logger.Warn("appointment updated without notification", "appointment_id", appt.ID, "error", err)
		writeJSON(w, http.StatusMultiStatus, UpdateAppointmentResponse{Appointment: appt, NotificationError: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateAppointmentResponse{Appointment: appt})
}

// ListRecent handles GET /admin/appointments.
func (h *AppointmentsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListRecent(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
