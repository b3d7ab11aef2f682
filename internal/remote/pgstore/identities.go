package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/carepulse/internal/remote"
)

// identityColumns maps lookup fields to columns.
var identityColumns = map[string]string{
	"id":           "id",
	remote.FieldID: "id",
	"email":        "email",
	"phone":        "phone",
	"name":         "name",
}

// CreateIdentity inserts an identity. Emails are unique case-insensitively.
func (s *Store) CreateIdentity(ctx context.Context, in remote.IdentityInput) (*remote.Identity, error) {
	id := in.ID
	if id == "" {
		id = remote.NewID()
	}
	query := `
		INSERT INTO identities (id, name, email, phone, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRow(ctx, query, id, in.Name, strings.ToLower(in.Email), in.Phone, s.now()).Scan(&createdAt); err != nil {
		return nil, classify("identities.create", err)
	}
	return &remote.Identity{
		ID:        id,
		Name:      in.Name,
		Email:     strings.ToLower(in.Email),
		Phone:     in.Phone,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*remote.Identity, error) {
	query := `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM identities
		WHERE id = $1
	`
	var ident remote.Identity
	if err := s.db.QueryRow(ctx, query, id).Scan(&ident.ID, &ident.Name, &ident.Email, &ident.Phone, &ident.CreatedAt); err != nil {
		return nil, classify("identities.get", err)
	}
	ident.CreatedAt = ident.CreatedAt.UTC()
	return &ident, nil
}

// LookupIdentities returns identities matching every filter. Unknown fields
// match nothing.
func (s *Store) LookupIdentities(ctx context.Context, filters ...remote.Filter) ([]remote.Identity, error) {
	const op = "identities.lookup"
	var (
		where []string
		args  []any
	)
	for _, f := range filters {
		column, ok := identityColumns[f.Field]
		if !ok {
			return []remote.Identity{}, nil
		}
		values := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			value := fmt.Sprint(v)
			if column == "email" {
				value = strings.ToLower(value)
			}
			values = append(values, value)
		}
		args = append(args, values)
		where = append(where, fmt.Sprintf("%s = ANY($%d)", column, len(args)))
	}
	query := "SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at\nFROM identities"
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at ASC, id ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	out := []remote.Identity{}
	for rows.Next() {
		var ident remote.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.Phone, &ident.CreatedAt); err != nil {
			return nil, classify(op, err)
		}
		ident.CreatedAt = ident.CreatedAt.UTC()
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
