package queue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/supportd/internal/queue"

// Outcome labels for processed deliveries.
const (
	OutcomeDelivered    = "delivered"
	OutcomeResubmitted  = "resubmitted"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeRedelivered  = "redelivered"
)

// Metrics holds queue processing metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for queue consumption.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.processed, err = m.meter.Int64Counter(
		"supportd.queue.deliveries_total",
		metric.WithDescription("Total processed deliveries by channel and outcome."),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		m.logger.Warn("failed to create deliveries counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"supportd.queue.processing_duration_seconds",
		metric.WithDescription("Per-delivery pipeline duration in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// RecordDelivery records one delivery outcome.
func (m *Metrics) RecordDelivery(ctx context.Context, ch, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("channel", ch),
		attribute.String("outcome", outcome),
	}

	if m.processed != nil {
		m.processed.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}
