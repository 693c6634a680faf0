package outbox

import (
	"context"

	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	otelx "github.com/md-rashed-zaman/agendei/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Message is a Kafka record queued for relay. Topic doubles as the event type header.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// pending is a row of outbox_messages not yet sent.
type pending struct {
	Seq         int64  `db:"seq"`
	MessageID   string `db:"message_id"`
	Topic       string `db:"topic"`
	Key         string `db:"message_key"`
	Payload     []byte `db:"payload"`
	Traceparent string `db:"traceparent"`
	Tracestate  string `db:"tracestate"`
	Attempts    int    `db:"attempts"`
}

// kafkaMessage resumes the trace captured at enqueue time so the consumer's span links
// back to the request that produced the message.
func (p pending) kafkaMessage(ctx context.Context) kafka.Message {
	origin := otelx.ContextWithTraceContext(ctx, p.Traceparent, p.Tracestate)
	return kafka.Message{
		Topic:   p.Topic,
		Key:     []byte(p.Key),
		Value:   p.Payload,
		Headers: kafkax.InjectTraceHeaders(origin, kafkax.EventHeaders(p.MessageID, p.Topic)),
	}
}
