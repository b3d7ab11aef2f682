package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/carepulse/internal/messaging/templates"
)

// Message kinds, matching the appointment update types.
const (
	KindSchedule = "schedule"
	KindCancel   = "cancel"
	KindUpdate   = "update"
)

// ScheduleLayout renders schedules as e.g. "Jan 10, 2025 9:00 AM".
const ScheduleLayout = "Jan 2, 2006 3:04 PM"

var appointmentTemplates = map[string]string{
	KindSchedule: "Greetings from {{.Product}}. Your appointment is confirmed for {{.When}} with Dr. {{.Physician}}.",
	KindCancel:   "Greetings from {{.Product}}. We regret to inform that your appointment for {{.When}} is cancelled. Reason: {{.Reason}}.",
	KindUpdate:   "Greetings from {{.Product}}. Your appointment for {{.When}} with Dr. {{.Physician}} has been updated.",
}

// AppointmentDetails feeds the message templates.
type AppointmentDetails struct {
	Schedule           time.Time
	PrimaryPhysician   string
	CancellationReason string
}

// Composer builds patient-facing appointment messages.
type Composer struct {
	product  string
	location *time.Location
	renderer *templates.Renderer
}

// NewComposer creates a composer for product, rendering times in loc.
func NewComposer(product string, loc *time.Location) *Composer {
	if strings.TrimSpace(product) == "" {
		product = "CarePulse"
	}
	if loc == nil {
		loc = time.UTC
	}
	renderer, err := templates.NewRenderer(appointmentTemplates)
	if err != nil {
		panic(fmt.Sprintf("notify: appointment templates: %v", err))
	}
	return &Composer{product: product, location: loc, renderer: renderer}
}

// Compose renders the message for kind. Unknown kinds use the generic update wording.
func (c *Composer) Compose(kind string, d AppointmentDetails) (string, error) {
	if !c.renderer.Has(kind) {
		kind = KindUpdate
	}
	return c.renderer.Render(kind, map[string]string{
		"Product":   c.product,
		"When":      FormatSchedule(d.Schedule, c.location),
		"Physician": physicianName(d.PrimaryPhysician),
		"Reason":    strings.TrimSpace(d.CancellationReason),
	})
}

// FormatSchedule renders t in loc with ScheduleLayout.
func FormatSchedule(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(ScheduleLayout)
}

// The template already says "Dr.", so a stored "Dr. Adams" must not double it.
func physicianName(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"Dr. ", "Dr "} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(name, prefix))
		}
	}
	return name
}
