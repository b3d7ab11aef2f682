// Package memory is an in-process Remote Data Service used for local
// development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/carepulse/internal/remote"
)

type storedDoc struct {
	doc remote.Document
	seq int64
}

type storedFile struct {
	ref  remote.FileRef
	data []byte
}

// Backend implements remote.Client with maps guarded by a mutex.
type Backend struct {
	mu         sync.RWMutex
	docs       map[string]map[string]*storedDoc
	identities map[string]*remote.Identity
	files      map[string]map[string]*storedFile
	sent       []remote.TextMessage
	seq        int64
	now        func() time.Time
}

var _ remote.Client = (*Backend)(nil)

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		docs:       make(map[string]map[string]*storedDoc),
		identities: make(map[string]*remote.Identity),
		files:      make(map[string]map[string]*storedFile),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Sent returns a copy of every dispatched text message.
func (b *Backend) Sent() []remote.TextMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]remote.TextMessage, len(b.sent))
	copy(out, b.sent)
	return out
}

// FileData returns the stored bytes of a file.
func (b *Backend) FileData(bucket, fileID string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.files[bucket][fileID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

func (b *Backend) CreateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("documents.create", err)
	}
	normalized, err := normalize(fields)
	if err != nil {
		return nil, &remote.Error{Op: "documents.create", Status: 400, Message: err.Error(), Kind: remote.ErrRemoteService}
	}
	if id == "" {
		id = remote.NewID()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	coll := b.docs[collection]
	if coll == nil {
		coll = make(map[string]*storedDoc)
		b.docs[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return nil, &remote.Error{Op: "documents.create", Status: 409, Message: "document already exists", Kind: remote.ErrConflict}
	}
	now := b.now()
	b.seq++
	stored := &storedDoc{
		doc: remote.Document{
			ID:         id,
			Collection: collection,
			CreatedAt:  now,
			UpdatedAt:  now,
			Fields:     normalized,
		},
		seq: b.seq,
	}
	coll[id] = stored
	return cloneDoc(stored.doc), nil
}

func (b *Backend) GetDocument(ctx context.Context, collection, id string) (*remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("documents.get", err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	stored, ok := b.docs[collection][id]
	if !ok {
		return nil, notFound("documents.get", "document")
	}
	return cloneDoc(stored.doc), nil
}

func (b *Backend) UpdateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("documents.update", err)
	}
	normalized, err := normalize(fields)
	if err != nil {
		return nil, &remote.Error{Op: "documents.update", Status: 400, Message: err.Error(), Kind: remote.ErrRemoteService}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.docs[collection][id]
	if !ok {
		return nil, notFound("documents.update", "document")
	}
	for k, v := range normalized {
		stored.doc.Fields[k] = v
	}
	stored.doc.UpdatedAt = b.now()
	return cloneDoc(stored.doc), nil
}

func (b *Backend) ListDocuments(ctx context.Context, collection string, opts remote.ListOptions) (*remote.DocumentList, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("documents.list", err)
	}
	b.mu.RLock()
	var matched []*storedDoc
	for _, stored := range b.docs[collection] {
		if matchesAll(stored.doc, opts.Filters) {
			matched = append(matched, stored)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], opts.Order)
	})

	total := len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	out := &remote.DocumentList{Total: total, Documents: make([]remote.Document, 0, len(matched))}
	for _, stored := range matched {
		out.Documents = append(out.Documents, *cloneDoc(stored.doc))
	}
	return out, nil
}

func (b *Backend) CreateIdentity(ctx context.Context, in remote.IdentityInput) (*remote.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("identities.create", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.identities {
		if in.Email != "" && strings.EqualFold(existing.Email, in.Email) {
			return nil, &remote.Error{Op: "identities.create", Status: 409, Message: "a user with the same email already exists", Kind: remote.ErrConflict}
		}
	}
	id := in.ID
	if id == "" {
		id = remote.NewID()
	}
	if _, exists := b.identities[id]; exists {
		return nil, &remote.Error{Op: "identities.create", Status: 409, Message: "a user with the same id already exists", Kind: remote.ErrConflict}
	}
	ident := &remote.Identity{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: b.now(),
	}
	b.identities[id] = ident
	copied := *ident
	return &copied, nil
}

func (b *Backend) GetIdentity(ctx context.Context, id string) (*remote.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("identities.get", err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ident, ok := b.identities[id]
	if !ok {
		return nil, notFound("identities.get", "user")
	}
	copied := *ident
	return &copied, nil
}

func (b *Backend) LookupIdentities(ctx context.Context, filters ...remote.Filter) ([]remote.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("identities.lookup", err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []remote.Identity
	for _, ident := range b.identities {
		if identityMatches(ident, filters) {
			out = append(out, *ident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *Backend) UploadFile(ctx context.Context, bucket string, file remote.FileUpload) (*remote.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("files.upload", err)
	}
	if file.Body == nil || file.Name == "" {
		return nil, &remote.Error{Op: "files.upload", Status: 400, Message: "file body and name required", Kind: remote.ErrRemoteService}
	}
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return nil, remote.Wrap("files.upload", err)
	}
	id := file.ID
	if id == "" {
		id = remote.NewID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.files[bucket] == nil {
		b.files[bucket] = make(map[string]*storedFile)
	}
	ref := remote.FileRef{
		ID:          id,
		Bucket:      bucket,
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        int64(len(data)),
		CreatedAt:   b.now(),
	}
	b.files[bucket][id] = &storedFile{ref: ref, data: data}
	return &ref, nil
}

func (b *Backend) FileViewURL(bucket, fileID string) string {
	return fmt.Sprintf("memory://buckets/%s/files/%s/view", bucket, fileID)
}

func (b *Backend) SendText(ctx context.Context, msg remote.TextMessage) (*remote.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("messages.send", err)
	}
	if len(msg.Recipients) == 0 || strings.TrimSpace(msg.Content) == "" {
		return nil, &remote.Error{Op: "messages.send", Status: 400, Message: "recipients and content required", Kind: remote.ErrRemoteService}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range msg.Recipients {
		if _, ok := b.identities[id]; !ok {
			return nil, notFound("messages.send", "recipient "+id)
		}
	}
	if msg.ID == "" {
		msg.ID = remote.NewID()
	}
	msg.Recipients = append([]string(nil), msg.Recipients...)
	b.sent = append(b.sent, msg)
	return &remote.DeliveryReceipt{
		ID:         msg.ID,
		Status:     remote.DeliverySent,
		Recipients: msg.Recipients,
		Delivered:  len(msg.Recipients),
		SentAt:     b.now(),
	}, nil
}

func notFound(op, what string) error {
	return &remote.Error{Op: op, Status: 404, Message: what + " not found", Kind: remote.ErrNotFound}
}

// normalize round-trips fields through JSON so stored values look like what a
// remote service would return.
func normalize(fields remote.Fields) (remote.Fields, error) {
	if len(fields) == 0 {
		return remote.Fields{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var out remote.Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneDoc(doc remote.Document) *remote.Document {
	fields := make(remote.Fields, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	doc.Fields = fields
	return &doc
}

func fieldValue(doc remote.Document, field string) any {
	switch field {
	case remote.FieldID:
		return doc.ID
	case remote.FieldCreatedAt:
		return doc.CreatedAt
	case remote.FieldUpdatedAt:
		return doc.UpdatedAt
	default:
		return doc.Fields[field]
	}
}

func matchesAll(doc remote.Document, filters []remote.Filter) bool {
	for _, f := range filters {
		if !matchesAny(fieldValue(doc, f.Field), f.Values) {
			return false
		}
	}
	return true
}

func matchesAny(value any, candidates []any) bool {
	if value == nil {
		return false
	}
	got := fmt.Sprint(value)
	for _, c := range candidates {
		if fmt.Sprint(c) == got {
			return true
		}
	}
	return false
}

func identityMatches(ident *remote.Identity, filters []remote.Filter) bool {
	for _, f := range filters {
		var value string
		switch f.Field {
		case "id", remote.FieldID:
			value = ident.ID
		case "email":
			value = ident.Email
		case "phone":
			value = ident.Phone
		case "name":
			value = ident.Name
		default:
			return false
		}
		if !matchesAny(value, f.Values) {
			return false
		}
	}
	return true
}

func less(a, b *storedDoc, order []remote.Order) bool {
	for _, o := range order {
		c := compare(fieldValue(a.doc, o.Field), fieldValue(b.doc, o.Field))
		if o.Field == remote.FieldCreatedAt && c == 0 {
			c = compareInt(a.seq, b.seq)
		}
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return a.seq < b.seq
}

func compare(a, b any) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
