// Package appwrite implements remote.Client against the Appwrite REST API.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

const (
	responseFormat   = "1.5.0"
	defaultUserAgent = "carepulse-scheduler/0.1"
	// uniqueID asks Appwrite to generate the id.
	uniqueID = "unique()"
)

// Config selects the Appwrite project and database.
type Config struct {
	Endpoint   string
	ProjectID  string
	APIKey     string
	DatabaseID string
	// Collections maps logical collection names to Appwrite collection ids.
	// Unmapped names are used as-is.
	Collections map[string]string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *logging.Logger
}

// Client talks to one Appwrite project with a server API key.
type Client struct {
	endpoint    string
	projectID   string
	apiKey      string
	databaseID  string
	collections map[string]string
	httpClient  *http.Client
	logger      *logging.Logger
}

var _ remote.Client = (*Client)(nil)

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	switch {
	case endpoint == "":
		return nil, errors.New("appwrite: endpoint is required")
	case strings.TrimSpace(cfg.ProjectID) == "":
		return nil, errors.New("appwrite: project id is required")
	case strings.TrimSpace(cfg.APIKey) == "":
		return nil, errors.New("appwrite: api key is required")
	case strings.TrimSpace(cfg.DatabaseID) == "":
		return nil, errors.New("appwrite: database id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		endpoint:    endpoint,
		projectID:   cfg.ProjectID,
		apiKey:      cfg.APIKey,
		databaseID:  cfg.DatabaseID,
		collections: cfg.Collections,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

func (c *Client) collectionID(name string) string {
	if id, ok := c.collections[name]; ok && id != "" {
		return id
	}
	return name
}

func (c *Client) documentsPath(collection string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents",
		url.PathEscape(c.databaseID), url.PathEscape(c.collectionID(collection)))
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &remote.Error{Op: op, Message: "marshal request", Kind: remote.ErrRemoteService, Cause: err}
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, op, method, path, query, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &remote.Error{Op: op, Message: "build request", Kind: remote.ErrRemoteService, Cause: err}
	}
	req.Header.Set("X-Appwrite-Project", c.projectID)
	req.Header.Set("X-Appwrite-Key", c.apiKey)
	req.Header.Set("X-Appwrite-Response-Format", responseFormat)
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &remote.Error{Op: op, Kind: remote.ErrRemoteService, Cause: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &remote.Error{Op: op, Status: resp.StatusCode, Message: "read response", Kind: remote.ErrRemoteService, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(op, resp.StatusCode, data)
		c.logger.Debug("appwrite request failed", "op", op, "status", resp.StatusCode, "type", apiErr.Message)
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &remote.Error{Op: op, Status: resp.StatusCode, Message: "decode response", Kind: remote.ErrRemoteService, Cause: err}
	}
	return nil
}

func decodeAPIError(op string, status int, body []byte) *remote.Error {
	var parsed struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
		if parsed.Type != "" {
			message = parsed.Type + ": " + parsed.Message
		}
	}
	return &remote.Error{Op: op, Status: status, Message: message, Kind: remote.KindForStatus(status)}
}

// query is one Appwrite query in its JSON wire form.
type query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func encodeQueries(opts remote.ListOptions) (url.Values, error) {
	var queries []query
	for _, f := range opts.Filters {
		queries = append(queries, query{Method: "equal", Attribute: f.Field, Values: f.Values})
	}
	for _, o := range opts.Order {
		method := "orderAsc"
		if o.Desc {
			method = "orderDesc"
		}
		queries = append(queries, query{Method: method, Attribute: o.Field})
	}
	if opts.Limit > 0 {
		queries = append(queries, query{Method: "limit", Values: []any{opts.Limit}})
	}
	values := url.Values{}
	for _, q := range queries {
		data, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		values.Add("queries[]", string(data))
	}
	return values, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
