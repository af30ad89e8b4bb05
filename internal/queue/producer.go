package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/channel"
)

// Producer validates and enqueues support messages.
type Producer struct {
	transport Transport
	logger    *zap.Logger
}

// NewProducer creates a producer over a queue transport.
func NewProducer(transport Transport, logger *zap.Logger) (*Producer, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{transport: transport, logger: logger}, nil
}

// Enqueue validates a message and submits it wrapped in a fresh envelope.
// Malformed input fails with ErrValidationFailed before any send. Returns
// once the transport accepts the envelope, not once it is processed.
func (p *Producer) Enqueue(ctx context.Context, msg channel.Message) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{Message: msg})
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := p.transport.Send(ctx, data); err != nil {
		return fmt.Errorf("enqueuing message %s: %w", msg.ID, err)
	}

	p.logger.Debug("message enqueued",
		zap.String("id", msg.ID),
		zap.String("business_id", msg.BusinessID),
		zap.String("channel", msg.Channel.String()))
	return nil
}

// EnqueueBatch validates all messages up front and submits them in one
// transport batch. Any invalid message rejects the whole batch before
// anything is sent.
func (p *Producer) EnqueueBatch(ctx context.Context, msgs []channel.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := make([][]byte, len(msgs))
	for i, msg := range msgs {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		data, err := json.Marshal(Envelope{Message: msg})
		if err != nil {
			return fmt.Errorf("marshaling envelope %d: %w", i, err)
		}
		batch[i] = data
	}

	if err := p.transport.SendBatch(ctx, batch); err != nil {
		return fmt.Errorf("enqueuing batch of %d: %w", len(msgs), err)
	}

	p.logger.Debug("batch enqueued", zap.Int("count", len(msgs)))
	return nil
}
