// Package consumer reads appointment events from Kafka and applies each one
// exactly once through the inbox.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ruralhealthconnect/telecare/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// Deduper is implemented by inbox.Repository.
type Deduper interface {
	Once(ctx context.Context, eventID, eventType string, fn func(ctx context.Context, tx pgx.Tx) error) (bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	inbox   Deduper
	handler Handler
	applied func(ctx context.Context, msg kafka.Message)

	backoff    time.Duration
	maxBackoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, inbox Deduper, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(reader, logger, inbox, handler)
}

func newConsumer(reader MessageReader, logger *slog.Logger, inbox Deduper, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler:    handler,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// OnApplied registers fn to run after an event's transaction commits. It is
// not called for duplicates, so anything it sends goes out at most once.
func (c *Consumer) OnApplied(fn func(ctx context.Context, msg kafka.Message)) {
	c.applied = fn
}

// Run consumes until ctx is done. Offsets are committed only after the event
// and its inbox row are stored, so a crash redelivers rather than drops. A
// failing message is retried in place; later offsets on its partition are
// never committed past it.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			c.sleep(ctx, c.backoff)
			continue
		}

		if !c.processUntilDone(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// processUntilDone retries msg with exponential backoff. It reports false only
// when ctx ends first.
func (c *Consumer) processUntilDone(ctx context.Context, msg kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.process(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("retrying event", "attempt", attempt, "backoff", wait, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		c.sleep(ctx, wait)
		if ctx.Err() != nil {
			return false
		}
		wait *= 2
		if wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Error("event without id skipped", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	applied, err := c.inbox.Once(ctxSpan, meta.EventID, meta.EventType, func(ctx context.Context, tx pgx.Tx) error {
		return c.handler(ctx, tx, msg)
	})
	if err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !applied {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	if c.applied != nil {
		c.applied(ctxSpan, msg)
	}
	return nil
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
