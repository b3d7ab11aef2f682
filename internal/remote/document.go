package remote

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fields is the schema-flexible payload of a document.
type Fields map[string]any

// Document is a stored record identified by ID within Collection.
type Document struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Fields     Fields
}

// Keys injected by Decode so typed records can carry the document metadata.
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Decode fills v (a pointer to a struct with json tags) from the document
// fields plus its id and timestamps.
func (d *Document) Decode(v any) error {
	if d == nil {
		return fmt.Errorf("remote: decode nil document")
	}
	merged := make(map[string]any, len(d.Fields)+3)
	for k, val := range d.Fields {
		merged[k] = val
	}
	merged[KeyID] = d.ID
	if !d.CreatedAt.IsZero() {
		merged[KeyCreatedAt] = d.CreatedAt
	}
	if !d.UpdatedAt.IsZero() {
		merged[KeyUpdatedAt] = d.UpdatedAt
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("remote: marshal document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("remote: decode document %s: %w", d.ID, err)
	}
	return nil
}

// FieldsOf converts a struct with json tags into Fields. Metadata keys are
// stripped because the service owns them.
func FieldsOf(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal fields: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("remote: unmarshal fields: %w", err)
	}
	delete(fields, KeyID)
	delete(fields, KeyCreatedAt)
	delete(fields, KeyUpdatedAt)
	return fields, nil
}

// Filter matches documents whose Field equals any of Values.
type Filter struct {
	Field  string
	Values []any
}

// Equal builds an equality filter.
func Equal(field string, values ...any) Filter {
	return Filter{Field: field, Values: values}
}

// Order sorts a listing by Field.
type Order struct {
	Field string
	Desc  bool
}

// OrderDesc sorts newest/largest first.
func OrderDesc(field string) Order {
	return Order{Field: field, Desc: true}
}

// ListOptions narrows and orders ListDocuments. Limit <= 0 means the service default.
type ListOptions struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// DocumentList is one page of documents plus the total match count.
type DocumentList struct {
	Total     int
	Documents []Document
}
