// Package textsender delivers text notifications to identities over SMS,
// falling back to email for recipients without a phone number.
package textsender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/carepulse/internal/messaging/telnyxclient"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// SMSClient is satisfied by *telnyxclient.Client.
type SMSClient interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}

type Config struct {
	FromNumber         string
	MessagingProfileID string
	EmailSubject       string
}

// Sender implements remote.Messages.
type Sender struct {
	identities remote.Identities
	sms        SMSClient
	email      notify.EmailSender
	cfg        Config
	now        func() time.Time
	logger     *logging.Logger
}

var _ remote.Messages = (*Sender)(nil)

// New builds a Sender. Either sms or email may be nil, not both.
func New(identities remote.Identities, sms SMSClient, email notify.EmailSender, cfg Config, logger *logging.Logger) *Sender {
	if identities == nil {
		panic("textsender: identities cannot be nil")
	}
	if sms == nil && email == nil {
		panic("textsender: need an sms client or an email sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.EmailSubject == "" {
		cfg.EmailSubject = "Appointment update"
	}
	return &Sender{
		identities: identities,
		sms:        sms,
		email:      email,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// SendText delivers content to every recipient it can reach. The receipt is
// "sent" when all were reached and "partial" otherwise; reaching nobody is an error.
func (s *Sender) SendText(ctx context.Context, msg remote.TextMessage) (*remote.DeliveryReceipt, error) {
	const op = "messages.send"
	if len(msg.Recipients) == 0 || strings.TrimSpace(msg.Content) == "" {
		return nil, &remote.Error{Op: op, Message: "recipients and content required", Kind: remote.ErrRemoteService}
	}
	id := msg.ID
	if id == "" {
		id = remote.NewID()
	}

	var (
		delivered int
		failures  []error
	)
	for _, recipient := range msg.Recipients {
		if err := s.deliver(ctx, recipient, msg.Content); err != nil {
			s.logger.Warn("text delivery failed", "message_id", id, "recipient", recipient, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", recipient, err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		joined := errors.Join(failures...)
		if len(failures) == 1 {
			// One recipient keeps its own error kind, e.g. not found.
			return nil, remote.Wrap(op, joined)
		}
		return nil, &remote.Error{Op: op, Message: "no recipient reached", Kind: remote.ErrRemoteService, Cause: joined}
	}
	status := remote.DeliverySent
	if delivered < len(msg.Recipients) {
		status = remote.DeliveryPartial
	}
	return &remote.DeliveryReceipt{
		ID:         id,
		Status:     status,
		Recipients: append([]string(nil), msg.Recipients...),
		Delivered:  delivered,
		SentAt:     s.now(),
	}, nil
}

func (s *Sender) deliver(ctx context.Context, recipient, content string) error {
	ident, err := s.identities.GetIdentity(ctx, recipient)
	if err != nil {
		return err
	}
	if ident.Phone != "" && s.sms != nil {
		_, err := s.sms.SendMessage(ctx, telnyxclient.SendMessageRequest{
			From:               s.cfg.FromNumber,
			To:                 ident.Phone,
			Body:               content,
			MessagingProfileID: s.cfg.MessagingProfileID,
		})
		if err != nil {
			return fmt.Errorf("sms: %w", err)
		}
		return nil
	}
	if ident.Email != "" && s.email != nil {
		err := s.email.Send(ctx, notify.EmailMessage{
			To:      ident.Email,
			ToName:  ident.Name,
			Subject: s.cfg.EmailSubject,
			Body:    content,
		})
		if err != nil {
			return fmt.Errorf("email: %w", err)
		}
		return nil
	}
	return errors.New("no reachable contact")
}
