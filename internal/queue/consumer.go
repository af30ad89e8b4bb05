package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/channel"
	"github.com/fyrsmithlabs/supportd/internal/rag"
)

const (
	defaultMaxRetries = 3
	defaultWorkers    = 8
)

// fallbackText is the reply used when the tenant's knowledge base has no
// relevant context. A knowledge gap is a business condition, not a
// processing failure, so it never enters the retry path.
const fallbackText = "I'm sorry, I couldn't find any relevant information to answer your question. A member of our support team will follow up with you shortly."

// Responder computes a support response for a message.
type Responder interface {
	GenerateResponse(ctx context.Context, query, businessID, personaID string) (*rag.Response, error)
}

// ConsumerConfig holds consumer dependencies and tuning.
type ConsumerConfig struct {
	Responder Responder
	Deliverer Deliverer
	// Queue is the main queue, used to resubmit retried envelopes.
	Queue Transport
	// DLQ receives DeadLetter records after retry exhaustion.
	DLQ Transport
	// MaxRetries is the retry ceiling. An envelope whose failure would
	// raise the counter to this value is dead-lettered instead.
	MaxRetries int
	// Workers sizes the envelope-processing pool.
	Workers int
	Logger  *zap.Logger
	Metrics *Metrics
}

// Consumer processes delivered envelopes through the response pipeline.
//
// Envelopes are processed independently on a worker pool. One envelope's
// failure or timeout never aborts its siblings, and no ordering is
// guaranteed across envelopes, even within one business or conversation.
type Consumer struct {
	responder  Responder
	deliverer  Deliverer
	queue      Transport
	dlq        Transport
	maxRetries int
	pool       *ants.Pool
	logger     *zap.Logger
	metrics    *Metrics
}

// NewConsumer creates a consumer with its worker pool.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if cfg.Deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue transport is required")
	}
	if cfg.DLQ == nil {
		return nil, fmt.Errorf("dlq transport is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.Logger)
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Consumer{
		responder:  cfg.Responder,
		deliverer:  cfg.Deliverer,
		queue:      cfg.Queue,
		dlq:        cfg.DLQ,
		maxRetries: cfg.MaxRetries,
		pool:       pool,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Close releases the worker pool.
func (c *Consumer) Close() {
	c.pool.Release()
}

// ProcessBatch processes a batch of deliveries, each independently on the
// worker pool, and returns when every delivery has been completed.
func (c *Consumer) ProcessBatch(ctx context.Context, batch []Delivery) {
	var wg sync.WaitGroup
	for _, d := range batch {
		d := d
		wg.Add(1)
		task := func() {
			defer wg.Done()
			c.processOne(ctx, d)
		}
		if err := c.pool.Submit(task); err != nil {
			// Pool released or overloaded; process inline rather than
			// drop the delivery.
			task()
		}
	}
	wg.Wait()
}

// completion guards the exactly-one-completion protocol for a delivery.
type completion struct {
	delivery Delivery
	done     bool
	logger   *zap.Logger
}

func (c *completion) ack() {
	if c.done {
		c.logger.Error("protocol violation: delivery completed twice")
		return
	}
	c.done = true
	if err := c.delivery.Ack(); err != nil {
		c.logger.Error("ack failed", zap.Error(err))
	}
}

func (c *completion) redeliver() {
	if c.done {
		c.logger.Error("protocol violation: delivery completed twice")
		return
	}
	c.done = true
	if err := c.delivery.Retry(); err != nil {
		c.logger.Error("retry failed", zap.Error(err))
	}
}

func (c *Consumer) processOne(ctx context.Context, d Delivery) {
	start := time.Now()
	done := &completion{delivery: d, logger: c.logger}

	var env Envelope
	if err := json.Unmarshal(d.Data, &env); err != nil {
		// No envelope means no retry counter to increment; dead-letter
		// directly rather than dropping or looping forever. The raw bytes
		// ride along since the record's envelope is empty.
		c.logger.Warn("malformed envelope payload", zap.Error(err))
		c.deadLetter(ctx, done, env, d.Data, fmt.Errorf("unmarshaling envelope: %w", err))
		c.metrics.RecordDelivery(ctx, "unknown", OutcomeDeadLettered, time.Since(start))
		return
	}

	ch := env.Message.Channel.String()

	err := c.process(ctx, env)
	if err == nil {
		done.ack()
		c.metrics.RecordDelivery(ctx, ch, OutcomeDelivered, time.Since(start))
		return
	}

	c.logger.Warn("envelope processing failed",
		zap.String("id", env.Message.ID),
		zap.String("business_id", env.Message.BusinessID),
		zap.Int("retries", env.Retries),
		zap.Error(err))

	retries := env.Retries + 1
	if retries < c.maxRetries {
		c.resubmit(ctx, done, env, retries)
		c.metrics.RecordDelivery(ctx, ch, OutcomeResubmitted, time.Since(start))
		return
	}

	c.deadLetter(ctx, done, env, nil, err)
	c.metrics.RecordDelivery(ctx, ch, OutcomeDeadLettered, time.Since(start))
}

// process runs one envelope through the response pipeline: validate,
// generate, format, deliver.
func (c *Consumer) process(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing envelope: %v", r)
		}
	}()

	msg := env.Message
	if verr := ValidateMessage(msg); verr != nil {
		return verr
	}

	text := fallbackText
	resp, rerr := c.responder.GenerateResponse(ctx, msg.Content, msg.BusinessID, msg.PersonaID)
	switch {
	case rerr == nil:
		text = resp.Text
	case errors.Is(rerr, rag.ErrNoRelevantContext):
		c.logger.Info("no relevant context, using fallback reply",
			zap.String("id", msg.ID),
			zap.String("business_id", msg.BusinessID))
	default:
		return fmt.Errorf("generating response: %w", rerr)
	}

	adapter, aerr := channel.AdapterFor(msg.Channel)
	if aerr != nil {
		return aerr
	}

	payload, ferr := adapter.Format(msg, text)
	if ferr != nil {
		return fmt.Errorf("formatting reply: %w", ferr)
	}

	if derr := c.deliverer.Deliver(ctx, payload); derr != nil {
		return fmt.Errorf("delivering reply: %w", derr)
	}
	return nil
}

// resubmit sends a fresh envelope with the incremented counter to the main
// queue, then acks the original. Retry is realized as a new delivery, not
// redelivery of the same handle.
func (c *Consumer) resubmit(ctx context.Context, done *completion, env Envelope, retries int) {
	data, err := json.Marshal(Envelope{Message: env.Message, Retries: retries})
	if err != nil {
		c.logger.Error("marshaling retry envelope", zap.Error(err))
		done.redeliver()
		return
	}
	if err := c.queue.Send(ctx, data); err != nil {
		// Resubmission failed; leave the original in flight so the
		// transport redelivers it.
		c.logger.Error("resubmitting envelope", zap.String("id", env.Message.ID), zap.Error(err))
		done.redeliver()
		return
	}
	done.ack()
}

// deadLetter records a terminal failure on the DLQ, then acks the original
// so it leaves the main queue regardless. raw carries the delivered bytes
// for payloads that never decoded into an envelope.
func (c *Consumer) deadLetter(ctx context.Context, done *completion, env Envelope, raw []byte, cause error) {
	record := DeadLetter{
		Envelope:   env,
		Error:      cause.Error(),
		FailedAt:   time.Now().UTC(),
		RawPayload: raw,
	}
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Error("marshaling dead letter", zap.Error(err))
		done.redeliver()
		return
	}
	if err := c.dlq.Send(ctx, data); err != nil {
		c.logger.Error("sending dead letter", zap.String("id", env.Message.ID), zap.Error(err))
		done.redeliver()
		return
	}

	c.logger.Warn("envelope dead-lettered",
		zap.String("id", env.Message.ID),
		zap.String("business_id", env.Message.BusinessID),
		zap.Int("retries", env.Retries),
		zap.String("error", record.Error))
	done.ack()
}
