package patients

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

var patientsTracer = otel.Tracer("carepulse.internal.patients")

const (
	// DefaultCollection is the patients collection id.
	DefaultCollection = "patients"
	// DefaultBucket holds identification files.
	DefaultBucket = "identification"
)

// Backend is the slice of the remote service patients need.
type Backend interface {
	remote.Documents
	remote.Identities
	remote.Files
}

// Config names the remote collection and bucket.
type Config struct {
	Collection string
	Bucket     string
}

// Service manages users and patient registrations.
type Service struct {
	backend    Backend
	collection string
	bucket     string
	logger     *logging.Logger
}

// NewService wires a patient service.
func NewService(backend Backend, cfg Config, logger *logging.Logger) *Service {
	if backend == nil {
		panic("patients: backend required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Service{backend: backend, collection: cfg.Collection, bucket: cfg.Bucket, logger: logger}
}

// CreateUser creates an identity, or returns the existing one registered
// under the same email.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*remote.Identity, error) {
	ctx, span := patientsTracer.Start(ctx, "patients.create_user")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.backend.CreateIdentity(ctx, remote.IdentityInput{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err == nil {
		s.logger.Info("user created", "user_id", user.ID)
		return user, nil
	}
	if !errors.Is(err, remote.ErrConflict) {
		span.RecordError(err)
		s.logger.Error("failed to create user", "error", err)
		return nil, fmt.Errorf("patients: create user: %w", err)
	}

	existing, lookupErr := s.backend.LookupIdentities(ctx, remote.Equal("email", req.Email))
	if lookupErr != nil {
		span.RecordError(lookupErr)
		return nil, fmt.Errorf("patients: lookup existing user: %w", lookupErr)
	}
	if len(existing) == 0 {
		// Conflict on something other than the email, e.g. the phone.
		return nil, fmt.Errorf("patients: create user: %w", err)
	}
	span.SetAttributes(attribute.Bool("carepulse.existing_user", true))
	s.logger.Info("user already exists", "user_id", existing[0].ID)
	return &existing[0], nil
}

// GetUser fetches an identity by id.
func (s *Service) GetUser(ctx context.Context, userID string) (*remote.Identity, error) {
	ctx, span := patientsTracer.Start(ctx, "patients.get_user")
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUserID
	}
	user, err := s.backend.GetIdentity(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("patients: get user: %w", err)
	}
	return user, nil
}

// GetPatient returns the first patient document owned by userID.
func (s *Service) GetPatient(ctx context.Context, userID string) (*Patient, error) {
	ctx, span := patientsTracer.Start(ctx, "patients.get_patient")
	defer span.End()
	span.SetAttributes(attribute.String("carepulse.user_id", userID))

	if userID == "" {
		return nil, ErrMissingUserID
	}
	list, err := s.backend.ListDocuments(ctx, s.collection, remote.ListOptions{
		Filters: []remote.Filter{remote.Equal("user_id", userID)},
		Limit:   1,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("patients: get patient: %w", err)
	}
	if len(list.Documents) == 0 {
		return nil, fmt.Errorf("patients: no patient for user %s: %w", userID, remote.ErrNotFound)
	}
	return decode(&list.Documents[0])
}

// RegisterPatient stores the identification file when one is usable, then
// always attempts to create the patient document.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterRequest) (*Patient, error) {
	ctx, span := patientsTracer.Start(ctx, "patients.register")
	defer span.End()

	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("carepulse.user_id", req.UserID))

	fields, err := remote.FieldsOf(req.Profile)
	if err != nil {
		return nil, fmt.Errorf("patients: encode profile: %w", err)
	}
	fields["identification_document_id"] = nil
	fields["identification_document_url"] = nil

	if ref := s.storeIdentification(ctx, req.UserID, req.IdentificationDocument); ref != nil {
		fields["identification_document_id"] = ref.ID
		fields["identification_document_url"] = s.backend.FileViewURL(s.bucket, ref.ID)
	}

	doc, err := s.backend.CreateDocument(ctx, s.collection, "", fields)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("failed to register patient", "error", err, "user_id", req.UserID)
		return nil, fmt.Errorf("patients: register: %w", err)
	}
	patient, err := decode(doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("patient registered", "patient_id", patient.ID, "user_id", patient.UserID,
		"has_identification", patient.IdentificationDocumentID != nil)
	return patient, nil
}

// storeIdentification returns nil when the file is absent, malformed or the
// upload failed.
func (s *Service) storeIdentification(ctx context.Context, userID string, doc *IdentificationDocument) *remote.FileRef {
	if doc == nil {
		return nil
	}
	if doc.Body == nil || doc.FileName == "" {
		s.logger.Warn("skipping identification document", "error", ErrMalformedDocument, "user_id", userID)
		return nil
	}
	ref, err := s.backend.UploadFile(ctx, s.bucket, remote.FileUpload{
		Name:        doc.FileName,
		ContentType: doc.ContentType,
		Size:        doc.Size,
		Body:        doc.Body,
	})
	if err != nil {
		s.logger.Error("failed to upload identification document", "error", err, "user_id", userID)
		return nil
	}
	return ref
}

func decode(doc *remote.Document) (*Patient, error) {
	var p Patient
	if err := doc.Decode(&p); err != nil {
		return nil, fmt.Errorf("patients: decode: %w", err)
	}
	return &p, nil
}
