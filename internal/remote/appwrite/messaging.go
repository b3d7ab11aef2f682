package appwrite

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/carepulse/internal/remote"
)

// SendText creates an SMS message addressed to user ids. Appwrite resolves
// each user's phone target itself.
func (c *Client) SendText(ctx context.Context, msg remote.TextMessage) (*remote.DeliveryReceipt, error) {
	const op = "messages.send"
	if len(msg.Recipients) == 0 || msg.Content == "" {
		return nil, &remote.Error{Op: op, Message: "recipients and content required", Kind: remote.ErrRemoteService}
	}
	id := msg.ID
	if id == "" {
		id = uniqueID
	}
	payload := map[string]any{
		"messageId": id,
		"content":   msg.Content,
		"users":     msg.Recipients,
	}
	var raw struct {
		ID             string `json:"$id"`
		Status         string `json:"status"`
		DeliveredTotal int    `json:"deliveredTotal"`
		DeliveredAt    string `json:"deliveredAt"`
		CreatedAt      string `json:"$createdAt"`
	}
	if err := c.doJSON(ctx, op, http.MethodPost, "/messaging/messages/sms", nil, payload, &raw); err != nil {
		return nil, err
	}

	status := remote.DeliveryQueued
	switch raw.Status {
	case "sent":
		status = remote.DeliverySent
		if raw.DeliveredTotal > 0 && raw.DeliveredTotal < len(msg.Recipients) {
			status = remote.DeliveryPartial
		}
	case "failed":
		return nil, &remote.Error{Op: op, Message: "message delivery failed", Kind: remote.ErrRemoteService}
	}
	sentAt := parseTime(raw.DeliveredAt)
	if sentAt.IsZero() {
		sentAt = parseTime(raw.CreatedAt)
	}
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	return &remote.DeliveryReceipt{
		ID:         raw.ID,
		Status:     status,
		Recipients: append([]string(nil), msg.Recipients...),
		Delivered:  raw.DeliveredTotal,
		SentAt:     sentAt,
	}, nil
}
