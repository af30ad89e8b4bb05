package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/supportd/internal/channel"
	"github.com/fyrsmithlabs/supportd/internal/rag"
)

type fakeResponder struct {
	text  string
	err   error
	calls atomic.Int64
}

func (f *fakeResponder) GenerateResponse(_ context.Context, query, businessID, personaID string) (*rag.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &rag.Response{Text: f.text, BusinessID: businessID, PersonaID: personaID}, nil
}

type fakeDeliverer struct {
	mu       sync.Mutex
	payloads []channel.OutboundPayload
	err      error
}

func (f *fakeDeliverer) Deliver(_ context.Context, payload channel.OutboundPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeDeliverer) delivered() []channel.OutboundPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.OutboundPayload(nil), f.payloads...)
}

// testDelivery counts completions on its handles.
type testDelivery struct {
	acks    atomic.Int64
	retries atomic.Int64
}

func newDelivery(t *testing.T, env Envelope) (Delivery, *testDelivery) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return rawDelivery(data)
}

func rawDelivery(data []byte) (Delivery, *testDelivery) {
	td := &testDelivery{}
	return Delivery{
		Data:  data,
		Ack:   func() error { td.acks.Add(1); return nil },
		Retry: func() error { td.retries.Add(1); return nil },
	}, td
}

type consumerFixture struct {
	consumer  *Consumer
	queue     *memTransport
	dlq       *memTransport
	responder *fakeResponder
	deliverer *fakeDeliverer
}

func newConsumerFixture(t *testing.T, responder *fakeResponder, deliverer *fakeDeliverer) *consumerFixture {
	t.Helper()
	queue := &memTransport{}
	dlq := &memTransport{}
	c, err := NewConsumer(ConsumerConfig{
		Responder:  responder,
		Deliverer:  deliverer,
		Queue:      queue,
		DLQ:        dlq,
		MaxRetries: 3,
		Workers:    4,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return &consumerFixture{consumer: c, queue: queue, dlq: dlq, responder: responder, deliverer: deliverer}
}

func TestConsumerSuccessAcks(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{text: "All set!"}, &fakeDeliverer{})

	msg := validMessage()
	msg.Channel = channel.Email
	d, td := newDelivery(t, Envelope{Message: msg})

	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	assert.EqualValues(t, 1, td.acks.Load())
	assert.Zero(t, td.retries.Load())
	assert.Zero(t, fx.queue.count())
	assert.Zero(t, fx.dlq.count())

	delivered := fx.deliverer.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, channel.Email, delivered[0].Channel)
	assert.Equal(t, "All set!", delivered[0].Content)
	assert.Contains(t, delivered[0].Metadata[channel.MetaSubject], "Re: ")
}

func TestConsumerFailureResubmitsFreshEnvelope(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{err: errors.New("model down")}, &fakeDeliverer{})

	msg := validMessage()
	d, td := newDelivery(t, Envelope{Message: msg, Retries: 0})

	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	// The failure becomes a new envelope with the counter incremented,
	// and the original is acked.
	assert.EqualValues(t, 1, td.acks.Load())
	assert.Zero(t, td.retries.Load())
	assert.Zero(t, fx.dlq.count())

	envs := fx.queue.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, msg.ID, envs[0].Message.ID)
	assert.Equal(t, 1, envs[0].Retries)
}

func TestConsumerExhaustedRetriesDeadLetters(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{err: errors.New("model down")}, &fakeDeliverer{})

	msg := validMessage()
	// One failure away from the ceiling.
	d, td := newDelivery(t, Envelope{Message: msg, Retries: 2})

	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	assert.EqualValues(t, 1, td.acks.Load())
	assert.Zero(t, fx.queue.count())
	require.Equal(t, 1, fx.dlq.count())

	var record DeadLetter
	require.NoError(t, json.Unmarshal(fx.dlq.sent[0], &record))
	assert.Equal(t, msg.ID, record.Envelope.Message.ID)
	assert.Equal(t, 2, record.Envelope.Retries)
	assert.Contains(t, record.Error, "model down")
	assert.False(t, record.FailedAt.IsZero())
	assert.Empty(t, record.RawPayload)
}

func TestConsumerAlwaysCompletesExactlyOnce(t *testing.T) {
	// Any single processed envelope ends as either an acked delivery or
	// an acked DLQ record, never neither.
	ctx := context.Background()

	cases := []struct {
		name      string
		responder *fakeResponder
		retries   int
	}{
		{"success", &fakeResponder{text: "ok"}, 0},
		{"transient failure", &fakeResponder{err: errors.New("boom")}, 0},
		{"exhausted failure", &fakeResponder{err: errors.New("boom")}, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newConsumerFixture(t, tc.responder, &fakeDeliverer{})
			d, td := newDelivery(t, Envelope{Message: validMessage(), Retries: tc.retries})

			fx.consumer.ProcessBatch(ctx, []Delivery{d})

			assert.EqualValues(t, 1, td.acks.Load()+td.retries.Load())
			delivered := len(fx.deliverer.delivered())
			assert.Equal(t, 1, delivered+fx.queue.count()+fx.dlq.count())
		})
	}
}

func TestConsumerMalformedPayloadDeadLetters(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{text: "ok"}, &fakeDeliverer{})

	payload := []byte(`{"message": {"id": "broken", "content": "customer text"`)
	d, td := rawDelivery(payload)
	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	assert.EqualValues(t, 1, td.acks.Load())
	require.Equal(t, 1, fx.dlq.count())
	assert.Zero(t, fx.responder.calls.Load())

	// The record's envelope is empty, so the delivered bytes must survive
	// verbatim for forensics.
	var record DeadLetter
	require.NoError(t, json.Unmarshal(fx.dlq.sent[0], &record))
	assert.Equal(t, payload, record.RawPayload)
	assert.Contains(t, record.Error, "unmarshaling envelope")
}

func TestConsumerInvalidMessageEntersRetryPath(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{text: "ok"}, &fakeDeliverer{})

	msg := validMessage()
	msg.Channel = "sms"
	d, td := newDelivery(t, Envelope{Message: msg})

	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	// Invalid messages are failures with retry accounting, not drops.
	assert.EqualValues(t, 1, td.acks.Load())
	assert.Equal(t, 1, fx.queue.count())
	assert.Zero(t, fx.responder.calls.Load())
}

func TestConsumerNoContextUsesFallback(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{err: rag.ErrNoRelevantContext}, &fakeDeliverer{})

	msg := validMessage()
	msg.Channel = channel.Chat
	d, td := newDelivery(t, Envelope{Message: msg})

	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	assert.EqualValues(t, 1, td.acks.Load())
	assert.Zero(t, fx.queue.count())
	assert.Zero(t, fx.dlq.count())

	delivered := fx.deliverer.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, fallbackText, delivered[0].Content)
}

func TestConsumerDeliveryFailureRetries(t *testing.T) {
	ctx := context.Background()
	fx := newConsumerFixture(t, &fakeResponder{text: "ok"}, &fakeDeliverer{err: errors.New("smtp down")})

	d, td := newDelivery(t, Envelope{Message: validMessage()})
	fx.consumer.ProcessBatch(ctx, []Delivery{d})

	assert.EqualValues(t, 1, td.acks.Load())
	assert.Equal(t, 1, fx.queue.count())
}

func TestConsumerResubmissionFailureRedelivers(t *testing.T) {
	ctx := context.Background()
	responder := &fakeResponder{err: errors.New("boom")}
	queue := &memTransport{err: errors.New("queue unavailable")}
	dlq := &memTransport{}
	c, err := NewConsumer(ConsumerConfig{
		Responder: responder,
		Deliverer: &fakeDeliverer{},
		Queue:     queue,
		DLQ:       dlq,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	d, td := newDelivery(t, Envelope{Message: validMessage()})
	c.ProcessBatch(ctx, []Delivery{d})

	// Resubmission failed, so the original stays in flight for the
	// transport to redeliver.
	assert.Zero(t, td.acks.Load())
	assert.EqualValues(t, 1, td.retries.Load())
}

func TestConsumerBatchIndependence(t *testing.T) {
	ctx := context.Background()

	// The responder fails only for one business.
	responder := &selectiveResponder{failBusiness: "biz-bad"}
	fx := newConsumerFixture(t, &fakeResponder{text: "ok"}, &fakeDeliverer{})
	c, err := NewConsumer(ConsumerConfig{
		Responder: responder,
		Deliverer: fx.deliverer,
		Queue:     fx.queue,
		DLQ:       fx.dlq,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	good := validMessage()
	bad := validMessage()
	bad.BusinessID = "biz-bad"

	d1, td1 := newDelivery(t, Envelope{Message: good})
	d2, td2 := newDelivery(t, Envelope{Message: bad})

	c.ProcessBatch(ctx, []Delivery{d1, d2})

	// The failing envelope never aborts its sibling.
	assert.EqualValues(t, 1, td1.acks.Load())
	assert.EqualValues(t, 1, td2.acks.Load())
	assert.Len(t, fx.deliverer.delivered(), 1)
	assert.Equal(t, 1, fx.queue.count())
}

type selectiveResponder struct {
	failBusiness string
}

func (s *selectiveResponder) GenerateResponse(_ context.Context, _, businessID, personaID string) (*rag.Response, error) {
	if businessID == s.failBusiness {
		return nil, errors.New("induced failure")
	}
	return &rag.Response{Text: "ok", BusinessID: businessID, PersonaID: personaID}, nil
}
