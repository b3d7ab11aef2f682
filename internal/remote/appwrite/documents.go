package appwrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/wolfman30/carepulse/internal/remote"
)

// rawDocument is an Appwrite document: $-prefixed metadata mixed with fields.
type rawDocument map[string]json.RawMessage

func (c *Client) toDocument(collection string, raw rawDocument) (*remote.Document, error) {
	doc := &remote.Document{Collection: collection, Fields: remote.Fields{}}
	for key, value := range raw {
		if strings.HasPrefix(key, "$") {
			var s string
			_ = json.Unmarshal(value, &s)
			switch key {
			case remote.FieldID:
				doc.ID = s
			case remote.FieldCreatedAt:
				doc.CreatedAt = parseTime(s)
			case remote.FieldUpdatedAt:
				doc.UpdatedAt = parseTime(s)
			}
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, err
		}
		doc.Fields[key] = v
	}
	return doc, nil
}

func (c *Client) CreateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	const op = "documents.create"
	if id == "" {
		id = uniqueID
	}
	payload := map[string]any{"documentId": id, "data": fields}
	var raw rawDocument
	if err := c.doJSON(ctx, op, http.MethodPost, c.documentsPath(collection), nil, payload, &raw); err != nil {
		return nil, err
	}
	return c.decodeDocument(op, collection, raw)
}

func (c *Client) GetDocument(ctx context.Context, collection, id string) (*remote.Document, error) {
	const op = "documents.get"
	var raw rawDocument
	if err := c.doJSON(ctx, op, http.MethodGet, c.documentsPath(collection)+"/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	return c.decodeDocument(op, collection, raw)
}

func (c *Client) UpdateDocument(ctx context.Context, collection, id string, fields remote.Fields) (*remote.Document, error) {
	const op = "documents.update"
	var raw rawDocument
	payload := map[string]any{"data": fields}
	if err := c.doJSON(ctx, op, http.MethodPatch, c.documentsPath(collection)+"/"+url.PathEscape(id), nil, payload, &raw); err != nil {
		return nil, err
	}
	return c.decodeDocument(op, collection, raw)
}

func (c *Client) ListDocuments(ctx context.Context, collection string, opts remote.ListOptions) (*remote.DocumentList, error) {
	const op = "documents.list"
	queries, err := encodeQueries(opts)
	if err != nil {
		return nil, remote.Wrap(op, err)
	}
	var resp struct {
		Total     int           `json:"total"`
		Documents []rawDocument `json:"documents"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, c.documentsPath(collection), queries, nil, &resp); err != nil {
		return nil, err
	}
	list := &remote.DocumentList{Total: resp.Total, Documents: make([]remote.Document, 0, len(resp.Documents))}
	for _, raw := range resp.Documents {
		doc, err := c.decodeDocument(op, collection, raw)
		if err != nil {
			return nil, err
		}
		list.Documents = append(list.Documents, *doc)
	}
	return list, nil
}

func (c *Client) decodeDocument(op, collection string, raw rawDocument) (*remote.Document, error) {
	doc, err := c.toDocument(collection, raw)
	if err != nil {
		return nil, &remote.Error{Op: op, Message: "decode document", Kind: remote.ErrRemoteService, Cause: err}
	}
	if doc.ID == "" {
		return nil, &remote.Error{Op: op, Message: "document without $id", Kind: remote.ErrNotFound}
	}
	return doc, nil
}
