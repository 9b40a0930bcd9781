package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100

	// Message header carrying models.OutboxEvent.EventType
	HeaderEventType = "event_type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns writer that keeps events of one wallet in one partition
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
}

type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay ships committed outbox events to kafka. Delivery is at least once:
// events are marked published only after the broker acknowledged them
type Relay struct {
	interval  time.Duration
	batchSize int

	storage repository.Storage
	writer  messageWriter
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRelay(cfg RelayConfig, storage repository.Storage, writer messageWriter, l logger.Logger, m *metrics.Metrics) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Relay{
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		storage:   storage,
		writer:    writer,
		logger:    l.With("component", "outbox"),
		metrics:   m,
		now:       time.Now,
	}
}

// Run publishes events every interval till ctx is done.
// Returned channel is closed when relay stopped
func (r *Relay) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	r.logger.Debug("Starting outbox relay", "interval", r.interval, "batch_size", r.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Outbox relay stopped by context")
				return

			case <-ticker.C:
				// Drain the backlog without waiting for the next tick
				for {
					n, err := r.publishBatch(ctx)
					if err != nil {
						r.metrics.OutboxPublishErrors.Inc()
						r.logger.Error("Failed to publish outbox events", "error", err)
						break
					}
					if n < r.batchSize || ctx.Err() != nil {
						break
					}
				}
			}
		}
	}()

	return idleStopped
}

// publishBatch sends one batch of oldest events and returns how many were published
func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	var published int

	err := r.storage.InTx(ctx, func(s repository.Storage) error {
		events, err := s.Outbox().ListUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(events))
		ids := make([]string, 0, len(events))
		for _, e := range events {
			msgs = append(msgs, toMessage(e))
			ids = append(ids, e.ID)
		}

		if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("kafka error: %w", err)
		}

		if err := s.Outbox().MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}

		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if published > 0 {
		r.metrics.OutboxPublishedTotal.Add(float64(published))
		r.logger.Debug("Outbox events published", "count", published)
	}
	return published, nil
}

func toMessage(e models.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
}
