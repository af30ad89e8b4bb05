package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/channel"
)

// Transport is an at-least-once queue sink. The main queue and the
// dead-letter queue share this shape.
type Transport interface {
	// Send submits one payload and returns once the transport has
	// accepted it, not once it is processed.
	Send(ctx context.Context, data []byte) error

	// SendBatch submits multiple payloads.
	SendBatch(ctx context.Context, batch [][]byte) error
}

// Delivery is one envelope handed to the consumer, with its completion
// handles. Exactly one of Ack or Retry must be invoked per delivery.
type Delivery struct {
	// Data is the raw envelope payload.
	Data []byte

	// Ack removes the delivery from the in-flight batch.
	Ack func() error

	// Retry asks the transport to redeliver. Used only when completion
	// work (resubmission or dead-lettering) itself fails.
	Retry func() error
}

// Deliverer sends a formatted reply to its channel's external transport.
type Deliverer interface {
	Deliver(ctx context.Context, payload channel.OutboundPayload) error
}

// LogDeliverer logs outbound payloads instead of sending them. Used in the
// in-process local configuration and in tests.
type LogDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer creates a deliverer that logs replies.
func NewLogDeliverer(logger *zap.Logger) *LogDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDeliverer{logger: logger}
}

// Deliver logs the payload and succeeds.
func (d *LogDeliverer) Deliver(_ context.Context, payload channel.OutboundPayload) error {
	d.logger.Info("outbound reply",
		zap.String("channel", payload.Channel.String()),
		zap.String("business_id", payload.BusinessID),
		zap.Int("content_length", len(payload.Content)))
	return nil
}
