package telnyxclient

import (
	"errors"
	"strings"
	"time"
)

// SendMessageRequest describes an outbound SMS payload. From may be empty when
// the messaging profile owns a number pool.
type SendMessageRequest struct {
	From               string
	To                 string
	Body               string
	MessagingProfileID string
}

func (r SendMessageRequest) validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("telnyxclient: destination number required")
	}
	if strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.MessagingProfileID) == "" {
		return errors.New("telnyxclient: from number or messaging profile required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("telnyxclient: body required")
	}
	return nil
}

// MessageResponse represents the Telnyx message resource.
type MessageResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Parts     int       `json:"parts"`
	CreatedAt time.Time `json:"received_at"`
	To        []struct {
		PhoneNumber string `json:"phone_number"`
		Status      string `json:"status"`
	} `json:"to"`
	Status string `json:"-"`
}
