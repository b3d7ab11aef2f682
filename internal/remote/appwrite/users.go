package appwrite

import (
	"context"
	"net/http"
	"net/url"

	"github.com/wolfman30/carepulse/internal/remote"
)

type rawUser struct {
	ID        string `json:"$id"`
	CreatedAt string `json:"$createdAt"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (u rawUser) identity() remote.Identity {
	return remote.Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		CreatedAt: parseTime(u.CreatedAt),
	}
}

// CreateIdentity creates a password-less user. Appwrite answers 409 when the
// email, phone or id is taken.
func (c *Client) CreateIdentity(ctx context.Context, in remote.IdentityInput) (*remote.Identity, error) {
	id := in.ID
	if id == "" {
		id = uniqueID
	}
	payload := map[string]any{"userId": id, "name": in.Name}
	if in.Email != "" {
		payload["email"] = in.Email
	}
	if in.Phone != "" {
		payload["phone"] = in.Phone
	}
	var raw rawUser
	if err := c.doJSON(ctx, "identities.create", http.MethodPost, "/users", nil, payload, &raw); err != nil {
		return nil, err
	}
	ident := raw.identity()
	return &ident, nil
}

func (c *Client) GetIdentity(ctx context.Context, id string) (*remote.Identity, error) {
	var raw rawUser
	if err := c.doJSON(ctx, "identities.get", http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	ident := raw.identity()
	return &ident, nil
}

func (c *Client) LookupIdentities(ctx context.Context, filters ...remote.Filter) ([]remote.Identity, error) {
	const op = "identities.lookup"
	queries, err := encodeQueries(remote.ListOptions{Filters: filters})
	if err != nil {
		return nil, remote.Wrap(op, err)
	}
	var resp struct {
		Users []rawUser `json:"users"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, "/users", queries, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]remote.Identity, 0, len(resp.Users))
	for _, u := range resp.Users {
		out = append(out, u.identity())
	}
	return out, nil
}
