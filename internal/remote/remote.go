// Package remote defines the capability contract of the Backend-as-a-Service
// that owns every durable record: documents, user identities, file storage and
// outbound text messages. Adapters live in subpackages.
package remote

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Meta field names usable in filters and ordering.
const (
	FieldID        = "$id"
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
)

// Documents is schema-flexible record storage grouped by collection.
type Documents interface {
	// CreateDocument stores fields under id; an empty id asks the service to generate one.
	CreateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	// UpdateDocument merges fields into the stored document.
	UpdateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	ListDocuments(ctx context.Context, collection string, opts ListOptions) (*DocumentList, error)
}

// Identities is the user directory.
type Identities interface {
	// CreateIdentity fails with ErrConflict when the email is already registered.
	CreateIdentity(ctx context.Context, in IdentityInput) (*Identity, error)
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	LookupIdentities(ctx context.Context, filters ...Filter) ([]Identity, error)
}

// Files is blob storage organised in buckets.
type Files interface {
	UploadFile(ctx context.Context, bucket string, file FileUpload) (*FileRef, error)
	// FileViewURL returns the public view URL of a stored file.
	FileViewURL(bucket, fileID string) string
}

// Messages dispatches text messages to identities.
type Messages interface {
	SendText(ctx context.Context, msg TextMessage) (*DeliveryReceipt, error)
}

// Client is the full capability set consumed by the record services.
type Client interface {
	Documents
	Identities
	Files
	Messages
}

// Identity is a user account in the directory.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// IdentityInput is the payload for CreateIdentity. An empty ID is generated.
type IdentityInput struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// FileUpload is a blob plus the name it is stored under.
type FileUpload struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileRef describes a stored file.
type FileRef struct {
	ID          string    `json:"id"`
	Bucket      string    `json:"bucket"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// TextMessage addresses identities, not phone numbers.
type TextMessage struct {
	ID         string
	Recipients []string
	Content    string
}

// Delivery statuses reported in receipts.
const (
	DeliverySent    = "sent"
	DeliveryPartial = "partial"
	DeliveryQueued  = "queued"
)

// DeliveryReceipt acknowledges a dispatch; it does not confirm handset delivery.
type DeliveryReceipt struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Recipients []string  `json:"recipients"`
	Delivered  int       `json:"delivered"`
	SentAt     time.Time `json:"sent_at"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}
