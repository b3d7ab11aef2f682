package appointments

import (
	"strings"
	"time"

	"github.com/wolfman30/carepulse/internal/remote"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCancelled:
		return true
	}
	return false
}

// Request types. They drive the stored status and the notification wording.
const (
	TypeCreate   = "create"
	TypeSchedule = "schedule"
	TypeCancel   = "cancel"
)

// StatusForType maps a request type to the status it implies. Types without
// an implied status keep the caller's status.
func StatusForType(typ string, requested Status) Status {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case TypeCreate:
		return StatusPending
	case TypeSchedule:
		return StatusScheduled
	case TypeCancel:
		return StatusCancelled
	}
	return requested
}

// Appointment is a stored appointment record.
type Appointment struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	PatientID          string    `json:"patient_id"`
	PrimaryPhysician   string    `json:"primary_physician"`
	Schedule           time.Time `json:"schedule"`
	Reason             string    `json:"reason"`
	Note               string    `json:"note"`
	Status             Status    `json:"status"`
	CancellationReason string    `json:"cancellation_reason"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateRequest is the body of POST /appointments.
type CreateRequest struct {
	UserID           string    `json:"user_id"`
	PatientID        string    `json:"patient_id"`
	PrimaryPhysician string    `json:"primary_physician"`
	Schedule         time.Time `json:"schedule"`
	Reason           string    `json:"reason"`
	Note             string    `json:"note,omitempty"`
	// Status and Type are accepted for client compatibility but ignored.
	// New appointments are always stored as pending.
	Status Status `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Validate checks required fields. Schedules older than grace before now are
// rejected.
func (r *CreateRequest) Validate(now time.Time, grace time.Duration) error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUserID
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return ErrMissingPatientID
	}
	if strings.TrimSpace(r.PrimaryPhysician) == "" {
		return ErrMissingPhysician
	}
	if r.Schedule.IsZero() {
		return ErrMissingSchedule
	}
	if r.Schedule.Before(now.Add(-grace)) {
		return ErrScheduleInPast
	}
	if strings.TrimSpace(r.Reason) == "" {
		return ErrMissingReason
	}
	return nil
}

func (r *CreateRequest) fields() remote.Fields {
	return remote.Fields{
		"user_id":             strings.TrimSpace(r.UserID),
		"patient_id":          strings.TrimSpace(r.PatientID),
		"primary_physician":   strings.TrimSpace(r.PrimaryPhysician),
		"schedule":            r.Schedule.UTC().Format(time.RFC3339),
		"reason":              strings.TrimSpace(r.Reason),
		"note":                r.Note,
		"status":              string(StatusPending),
		"cancellation_reason": nil,
	}
}

// Changes is the partial field set applied by an update.
type Changes struct {
	PrimaryPhysician   *string    `json:"primary_physician,omitempty"`
	Schedule           *time.Time `json:"schedule,omitempty"`
	Status             *Status    `json:"status,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
}

// UpdateRequest is the body of PATCH /appointments/{appointmentID}.
type UpdateRequest struct {
	AppointmentID string  `json:"-"`
	UserID        string  `json:"user_id"`
	Type          string  `json:"type"`
	Appointment   Changes `json:"appointment"`
}

// Validate normalises Type, checks the request and derives the status
// from Type.
func (r *UpdateRequest) Validate() error {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if strings.TrimSpace(r.AppointmentID) == "" {
		return ErrMissingAppointmentID
	}
	status := r.status()
	if status != "" && !status.Valid() {
		return ErrUnknownStatus
	}
	if status == StatusCancelled {
		if r.Appointment.CancellationReason == nil || strings.TrimSpace(*r.Appointment.CancellationReason) == "" {
			return ErrMissingCancellationNote
		}
	}
	if len(r.fields()) == 0 {
		return ErrEmptyUpdate
	}
	return nil
}

func (r *UpdateRequest) status() Status {
	var requested Status
	if r.Appointment.Status != nil {
		requested = *r.Appointment.Status
	}
	return StatusForType(r.Type, requested)
}

func (r *UpdateRequest) fields() remote.Fields {
	fields := remote.Fields{}
	c := r.Appointment
	if c.PrimaryPhysician != nil && strings.TrimSpace(*c.PrimaryPhysician) != "" {
		fields["primary_physician"] = strings.TrimSpace(*c.PrimaryPhysician)
	}
	if c.Schedule != nil && !c.Schedule.IsZero() {
		fields["schedule"] = c.Schedule.UTC().Format(time.RFC3339)
	}
	if status := r.status(); status != "" {
		fields["status"] = string(status)
	}
	if c.CancellationReason != nil {
		fields["cancellation_reason"] = strings.TrimSpace(*c.CancellationReason)
	}
	return fields
}

// Tally counts appointments per known status.
type Tally struct {
	TotalCount     int `json:"total_count"`
	ScheduledCount int `json:"scheduled_count"`
	PendingCount   int `json:"pending_count"`
	CancelledCount int `json:"cancelled_count"`
}

// CountStatuses classifies every appointment into at most one bucket.
// Unknown statuses count toward none. total is the remote's own count.
func CountStatuses(list []Appointment, total int) Tally {
	tally := Tally{TotalCount: total}
	for _, a := range list {
		switch a.Status {
		case StatusScheduled:
			tally.ScheduledCount++
		case StatusPending:
			tally.PendingCount++
		case StatusCancelled:
			tally.CancelledCount++
		}
	}
	return tally
}

// RecentList is the admin view: newest appointments first plus a tally.
type RecentList struct {
	Tally
	Documents []Appointment `json:"documents"`
}
