package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, topic string) (bool, error)
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   reader
	logger   *slog.Logger
	inbox    Inbox
	handler  Handler
	attempts int
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	// Attempts bounds how often one message is handled before it is skipped.
	Attempts int
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, logger, inbox, cfg.Attempts, handler)
}

func newConsumer(r reader, logger *slog.Logger, inbox Inbox, attempts int, handler Handler) *Consumer {
	if attempts <= 0 {
		attempts = 3
	}
	return &Consumer{
		reader:   r,
		logger:   logger,
		inbox:    inbox,
		handler:  handler,
		attempts: attempts,
		backoff:  500 * time.Millisecond,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process handles one message. Handlers must be idempotent: a message is recorded in the
// inbox only after it was handled, so a crash in between replays it.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	seen, err := c.inbox.Processed(ctxSpan, meta.EventID)
	if err != nil {
		c.logger.Error("inbox lookup failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
	if seen {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			break
		}
		if attempt >= c.attempts || ctx.Err() != nil {
			c.logger.Error("handler gave up", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}

	if _, err := c.inbox.MarkProcessed(ctxSpan, meta.EventID, msg.Topic); err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
}
