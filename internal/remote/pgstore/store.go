// Package pgstore keeps documents and identities in Postgres.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/carepulse/internal/remote"
)

const uniqueViolation = "23505"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements remote.Documents and remote.Identities.
type Store struct {
	db  DB
	now func() time.Time
}

var (
	_ remote.Documents  = (*Store)(nil)
	_ remote.Identities = (*Store)(nil)
)

func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db cannot be nil")
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	const op = "documents.create"
	if id == "" {
		id = remote.NewID()
	}
	data, err := encodeFields(fields)
	if err != nil {
		return nil, &remote.Error{Op: op, Status: 400, Message: err.Error(), Kind: remote.ErrRemoteService}
	}
	now := s.now()
	query := `
		INSERT INTO documents (id, collection, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, data, created_at, updated_at
	`
	row := s.db.QueryRow(ctx, query, id, collection, data, now)
	doc, err := scanDocument(row, collection)
	if err != nil {
		return nil, classify(op, err)
	}
	return doc, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (*remote.Document, error) {
	query := `
		SELECT id, data, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	doc, err := scanDocument(s.db.QueryRow(ctx, query, collection, id), collection)
	if err != nil {
		return nil, classify("documents.get", err)
	}
	return doc, nil
}

// UpdateDocument merges fields into the stored data; absent keys are kept.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	const op = "documents.update"
	data, err := encodeFields(fields)
	if err != nil {
		return nil, &remote.Error{Op: op, Status: 400, Message: err.Error(), Kind: remote.ErrRemoteService}
	}
	query := `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING id, data, created_at, updated_at
	`
	doc, err := scanDocument(s.db.QueryRow(ctx, query, collection, id, data, s.now()), collection)
	if err != nil {
		return nil, classify(op, err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, collection string, opts remote.ListOptions) (*remote.DocumentList, error) {
	const op = "documents.list"
	query, args, err := buildListQuery(collection, opts)
	if err != nil {
		return nil, &remote.Error{Op: op, Status: 400, Message: err.Error(), Kind: remote.ErrRemoteService}
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	list := &remote.DocumentList{Documents: []remote.Document{}}
	for rows.Next() {
		var (
			id        string
			data      []byte
			createdAt time.Time
			updatedAt time.Time
			total     int64
		)
		if err := rows.Scan(&id, &data, &createdAt, &updatedAt, &total); err != nil {
			return nil, classify(op, err)
		}
		doc, err := newDocument(collection, id, data, createdAt, updatedAt)
		if err != nil {
			return nil, classify(op, err)
		}
		list.Total = int(total)
		list.Documents = append(list.Documents, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return list, nil
}

func buildListQuery(collection string, opts remote.ListOptions) (string, []any, error) {
	args := []any{collection}
	var b strings.Builder
	b.WriteString("SELECT id, data, created_at, updated_at, count(*) OVER ()\nFROM documents\nWHERE collection = $1")
	for _, f := range opts.Filters {
		values := make([]string, 0, len(f.Values))
		for _, v := range f.Values {
			values = append(values, fmt.Sprint(v))
		}
		if column, ok := metaColumn(f.Field); ok {
			if column != "id" {
				return "", nil, fmt.Errorf("cannot filter on %s", f.Field)
			}
			args = append(args, values)
			fmt.Fprintf(&b, " AND id = ANY($%d)", len(args))
			continue
		}
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid field %q", f.Field)
		}
		args = append(args, f.Field, values)
		fmt.Fprintf(&b, " AND data->>$%d = ANY($%d)", len(args)-1, len(args))
	}

	order := opts.Order
	if len(order) == 0 {
		order = []remote.Order{{Field: remote.FieldCreatedAt}}
	}
	var terms []string
	for _, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		if column, ok := metaColumn(o.Field); ok {
			terms = append(terms, column+" "+dir)
			continue
		}
		if !fieldName.MatchString(o.Field) {
			return "", nil, fmt.Errorf("invalid order field %q", o.Field)
		}
		args = append(args, o.Field)
		terms = append(terms, fmt.Sprintf("data->$%d %s", len(args), dir))
	}
	terms = append(terms, "id ASC")
	b.WriteString("\nORDER BY " + strings.Join(terms, ", "))

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

func metaColumn(field string) (string, bool) {
	switch field {
	case remote.FieldID:
		return "id", true
	case remote.FieldCreatedAt:
		return "created_at", true
	case remote.FieldUpdatedAt:
		return "updated_at", true
	}
	return "", false
}

func scanDocument(row pgx.Row, collection string) (*remote.Document, error) {
	var (
		id        string
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return newDocument(collection, id, data, createdAt, updatedAt)
}

func newDocument(collection, id string, data []byte, createdAt, updatedAt time.Time) (*remote.Document, error) {
	fields := remote.Fields{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode data of %s: %w", id, err)
		}
	}
	return &remote.Document{
		ID:         id,
		Collection: collection,
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  updatedAt.UTC(),
		Fields:     fields,
	}, nil
}

func encodeFields(fields remote.Fields) ([]byte, error) {
	if fields == nil {
		fields = remote.Fields{}
	}
	for key := range fields {
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("reserved field %q", key)
		}
	}
	return json.Marshal(fields)
}

func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &remote.Error{Op: op, Status: 404, Message: "not found", Kind: remote.ErrNotFound}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &remote.Error{Op: op, Status: 409, Message: pgErr.Detail, Kind: remote.ErrConflict, Cause: err}
	}
	return remote.Wrap(op, err)
}
