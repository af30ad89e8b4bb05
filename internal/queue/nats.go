package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

// NATSTransport publishes payloads to one JetStream subject. The main
// queue and the dead-letter queue are two transports over the same stream.
type NATSTransport struct {
	js      nats.JetStreamContext
	subject string
}

// NewNATSTransport creates a transport bound to a subject.
func NewNATSTransport(js nats.JetStreamContext, subject string) (*NATSTransport, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream context is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	return &NATSTransport{js: js, subject: subject}, nil
}

// Send publishes one payload and waits for the stream's ack.
func (t *NATSTransport) Send(ctx context.Context, data []byte) error {
	if _, err := t.js.Publish(t.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publishing to %s: %w", t.subject, err)
	}
	return nil
}

// SendBatch publishes payloads asynchronously and waits for all acks.
func (t *NATSTransport) SendBatch(ctx context.Context, batch [][]byte) error {
	futures := make([]nats.PubAckFuture, 0, len(batch))
	for _, data := range batch {
		f, err := t.js.PublishAsync(t.subject, data)
		if err != nil {
			return fmt.Errorf("publishing to %s: %w", t.subject, err)
		}
		futures = append(futures, f)
	}

	select {
	case <-t.js.PublishAsyncComplete():
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, f := range futures {
		select {
		case err := <-f.Err():
			return fmt.Errorf("publishing to %s: %w", t.subject, err)
		default:
		}
	}
	return nil
}

// EnsureStream creates the support stream if it does not exist. The stream
// carries both the main and dead-letter subjects.
func EnsureStream(js nats.JetStreamContext, cfg config.QueueConfig) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("checking stream %s: %w", cfg.Stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject, cfg.DLQSubject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", cfg.Stream, err)
	}
	return nil
}

// Runner pulls envelope batches from JetStream and feeds them to a
// consumer until its context is canceled.
type Runner struct {
	sub       *nats.Subscription
	consumer  *Consumer
	batchSize int
	maxWait   time.Duration
	logger    *zap.Logger
}

// NewRunner binds a durable pull subscription to the main queue subject.
func NewRunner(js nats.JetStreamContext, cfg config.QueueConfig, consumer *Consumer, logger *zap.Logger) (*Runner, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream context is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := js.PullSubscribe(cfg.Subject, "supportd-consumer", nats.BindStream(cfg.Stream))
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Subject, err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	maxWait := cfg.FetchTimeout.Duration()
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}

	return &Runner{
		sub:       sub,
		consumer:  consumer,
		batchSize: batchSize,
		maxWait:   maxWait,
		logger:    logger,
	}, nil
}

// Run fetches and processes batches until ctx is canceled. Fetch timeouts
// are idle polls, not errors.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("queue consumer started", zap.Int("batch_size", r.batchSize))
	defer r.logger.Info("queue consumer stopped")

	for {
		if err := ctx.Err(); err != nil {
			return r.drain()
		}

		msgs, err := r.sub.Fetch(r.batchSize, nats.MaxWait(r.maxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) {
				return r.drain()
			}
			r.logger.Error("fetching batch", zap.Error(err))
			continue
		}

		batch := make([]Delivery, len(msgs))
		for i, m := range msgs {
			m := m
			batch[i] = Delivery{
				Data:  m.Data,
				Ack:   func() error { return m.Ack() },
				Retry: func() error { return m.Nak() },
			}
		}
		r.consumer.ProcessBatch(ctx, batch)
	}
}

func (r *Runner) drain() error {
	if err := r.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}
