package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/carepulse/internal/events"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

var appointmentsTracer = otel.Tracer("carepulse.internal.appointments")

// DefaultCollection is the appointments collection id.
const DefaultCollection = "appointments"

// ScheduleGrace is how far in the past a new appointment may be scheduled.
const ScheduleGrace = 5 * time.Minute

// Notifier delivers a text to one user.
type Notifier interface {
	Send(ctx context.Context, userID, content string) (*remote.DeliveryReceipt, error)
}

// Recorder receives write and cache observations.
type Recorder interface {
	ObserveAppointmentWrite(action, status string)
	ObserveCacheLookup(hit bool)
}

// Config holds the optional collaborators of a Service.
type Config struct {
	Collection string
	Composer   *notify.Composer
	Cache      ListCache
	Events     events.Publisher
	Metrics    Recorder
	Now        func() time.Time
}

// Service manages appointment records.
type Service struct {
	docs       remote.Documents
	notifier   Notifier
	collection string
	composer   *notify.Composer
	cache      ListCache
	events     events.Publisher
	metrics    Recorder
	now        func() time.Time
	logger     *logging.Logger
}

// NewService wires an appointment service.
func NewService(docs remote.Documents, notifier Notifier, cfg Config, logger *logging.Logger) *Service {
	if docs == nil {
		panic("appointments: documents capability required")
	}
	if notifier == nil {
		panic("appointments: notifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Composer == nil {
		cfg.Composer = notify.NewComposer("", time.UTC)
	}
	if cfg.Cache == nil {
		cfg.Cache = noopCache{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		docs:       docs,
		notifier:   notifier,
		collection: cfg.Collection,
		composer:   cfg.Composer,
		cache:      cfg.Cache,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		logger:     logger,
	}
}

// Create stores a new appointment as pending. Any status or type in the
// request is ignored.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()

	if err := req.Validate(s.now(), ScheduleGrace); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("carepulse.user_id", req.UserID),
		attribute.String("carepulse.patient_id", req.PatientID),
	)

	doc, err := s.docs.CreateDocument(ctx, s.collection, "", req.fields())
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to create appointment", "error", err, "user_id", req.UserID)
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	appt, err := decode(doc)
	if err != nil {
		return nil, err
	}

	s.observeWrite(events.ActionCreated, appt.Status)
	s.changed(ctx, appt, events.ActionCreated)
	s.logger.Info("appointment created", "appointment_id", appt.ID, "user_id", appt.UserID, "status", appt.Status)
	return appt, nil
}

// Get fetches an appointment by id.
func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.get")
	defer span.End()
	span.SetAttributes(attribute.String("carepulse.appointment_id", id))

	if id == "" {
		return nil, ErrMissingAppointmentID
	}
	doc, err := s.docs.GetDocument(ctx, s.collection, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return decode(doc)
}

// Update applies a partial change, then notifies the owner exactly once.
// When notification is required and fails, the updated record is returned
// together with an error wrapping notify.ErrNotificationFailed.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.update")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("carepulse.appointment_id", req.AppointmentID),
		attribute.String("carepulse.update_type", req.Type),
	)

	doc, err := s.docs.UpdateDocument(ctx, s.collection, req.AppointmentID, req.fields())
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to update appointment", "error", err, "appointment_id", req.AppointmentID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUpdateNoDocument, err)
		}
		return nil, fmt.Errorf("appointments: update: %w", err)
	}
	if doc == nil {
		return nil, ErrUpdateNoDocument
	}
	appt, err := decode(doc)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	if userID == "" {
		userID = appt.UserID
	}
	content, err := s.composer.Compose(req.Type, notify.AppointmentDetails{
		Schedule:           appt.Schedule,
		PrimaryPhysician:   appt.PrimaryPhysician,
		CancellationReason: appt.CancellationReason,
	})
	var notifyErr error
	if err != nil {
		notifyErr = fmt.Errorf("%w: %w", notify.ErrNotificationFailed, err)
		s.logger.Error("failed to compose notification", "error", err, "appointment_id", appt.ID)
	} else {
		_, notifyErr = s.notifier.Send(ctx, userID, content)
	}

	s.observeWrite(events.ActionUpdated, appt.Status)
	s.changed(ctx, appt, events.ActionUpdated)
	s.logger.Info("appointment updated", "appointment_id", appt.ID, "status", appt.Status, "type", req.Type)

	if notifyErr != nil {
		span.RecordError(notifyErr)
		return appt, notifyErr
	}
	return appt, nil
}

// ListRecent returns every appointment newest first with a status tally.
func (s *Service) ListRecent(ctx context.Context) (*RecentList, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.list_recent")
	defer span.End()

	cached, gen, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("appointment list cache unavailable", "error", err)
	}
	s.observeCache(ok)
	if ok {
		span.SetAttributes(attribute.Bool("carepulse.cache_hit", true))
		return cached, nil
	}

	list, err := s.docs.ListDocuments(ctx, s.collection, remote.ListOptions{
		Order: []remote.Order{remote.OrderDesc(remote.FieldCreatedAt)},
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to list appointments", "error", err)
		return nil, fmt.Errorf("appointments: list: %w", err)
	}

	out := &RecentList{Documents: make([]Appointment, 0, len(list.Documents))}
	for i := range list.Documents {
		appt, err := decode(&list.Documents[i])
		if err != nil {
			return nil, err
		}
		out.Documents = append(out.Documents, *appt)
	}
	out.Tally = CountStatuses(out.Documents, list.Total)

	if err := s.cache.Set(ctx, gen, out); err != nil {
		s.logger.Warn("failed to cache appointment list", "error", err)
	}
	return out, nil
}

// changed drops the cached admin list and announces the change.
func (s *Service) changed(ctx context.Context, appt *Appointment, action string) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate appointment list cache", "error", err)
	}
	if s.events == nil {
		return
	}
	env, err := events.NewEnvelope(events.AppointmentAggregate(appt.ID), events.AppointmentsChangedV1{
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		Action:        action,
		OccurredAt:    s.now().UTC(),
	})
	if err == nil {
		err = s.events.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn("failed to publish appointment change", "error", err, "appointment_id", appt.ID)
	}
}

func (s *Service) observeWrite(action string, status Status) {
	if s.metrics != nil {
		s.metrics.ObserveAppointmentWrite(action, string(status))
	}
}

func (s *Service) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(hit)
	}
}

func decode(doc *remote.Document) (*Appointment, error) {
	var appt Appointment
	if err := doc.Decode(&appt); err != nil {
		return nil, fmt.Errorf("appointments: decode: %w", err)
	}
	return &appt, nil
}
