package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

var notifyTracer = otel.Tracer("carepulse.internal.notify")

// ErrNotificationFailed is returned by Send when notifications are required and dispatch failed.
var ErrNotificationFailed = errors.New("notify: notification failed")

// Recorder receives one outcome per dispatch attempt.
type Recorder interface {
	ObserveNotification(outcome string)
}

// DispatcherConfig selects the failure policy.
type DispatcherConfig struct {
	// Required makes dispatch failures visible to the caller. The triggering
	// write is never rolled back either way.
	Required bool
	Metrics  Recorder
}

// Dispatcher sends text notifications to a single user identity.
type Dispatcher struct {
	messages remote.Messages
	required bool
	metrics  Recorder
	logger   *logging.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(messages remote.Messages, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if messages == nil {
		panic("notify: messages capability required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		messages: messages,
		required: cfg.Required,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Required reports the failure policy.
func (d *Dispatcher) Required() bool {
	return d.required
}

// Send dispatches content to userID. With the best-effort policy a failure is
// logged and (nil, nil) is returned.
func (d *Dispatcher) Send(ctx context.Context, userID, content string) (*remote.DeliveryReceipt, error) {
	ctx, span := notifyTracer.Start(ctx, "notify.send")
	defer span.End()
	span.SetAttributes(attribute.String("carepulse.user_id", userID))

	var err error
	var receipt *remote.DeliveryReceipt
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(content) == "" {
		err = errors.New("notify: recipient and content required")
	} else {
		receipt, err = d.messages.SendText(ctx, remote.TextMessage{
			Recipients: []string{userID},
			Content:    content,
		})
	}

	if err != nil {
		span.RecordError(err)
		d.observe("failed")
		d.logger.Error("notify: failed to send notification", "error", err, "user_id", userID, "required", d.required)
		if d.required {
			return nil, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
		}
		return nil, nil
	}

	if receipt == nil {
		receipt = &remote.DeliveryReceipt{Status: remote.DeliveryQueued, Recipients: []string{userID}}
	}
	d.observe("sent")
	d.logger.Info("notify: notification sent", "user_id", userID, "message_id", receipt.ID, "status", receipt.Status)
	return receipt, nil
}

func (d *Dispatcher) observe(outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveNotification(outcome)
	}
}
