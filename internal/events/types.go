package events

import "time"

// Actions carried by AppointmentsChangedV1.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// AppointmentsChangedV1 signals that the admin appointment list is stale.
type AppointmentsChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	Status        string    `json:"status"`
	Action        string    `json:"action"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (AppointmentsChangedV1) EventType() string {
	return "appointments.changed.v1"
}

// AppointmentAggregate returns the aggregate key used for appointment events.
func AppointmentAggregate(appointmentID string) string {
	return "appointment:" + appointmentID
}
