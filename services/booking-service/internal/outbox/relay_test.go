package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

func TestPendingKafkaMessage(t *testing.T) {
	msg := pending{
		Seq:       7,
		MessageID: "evt-7",
		Topic:     "booking.appointment.confirmed.v1",
		Key:       "appt-1",
		Payload:   []byte(`{"id":"appt-1"}`),
	}.kafkaMessage(context.Background())

	if msg.Topic != "booking.appointment.confirmed.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected routing %s/%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-7" || meta.EventType != "booking.appointment.confirmed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestPartition(t *testing.T) {
	batch := []pending{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	broken := errors.New("leader not available")

	sent, failed, cause := partition(batch, nil)
	if len(sent) != 3 || failed != nil || cause != nil {
		t.Fatalf("all ok: sent=%v failed=%v cause=%v", sent, failed, cause)
	}

	sent, failed, cause = partition(batch, kafka.WriteErrors{nil, broken, nil})
	if len(sent) != 2 || sent[0] != 1 || sent[1] != 3 || len(failed) != 1 || failed[0] != 2 || cause != broken {
		t.Fatalf("partial: sent=%v failed=%v cause=%v", sent, failed, cause)
	}

	sent, failed, cause = partition(batch, broken)
	if sent != nil || len(failed) != 3 || cause != broken {
		t.Fatalf("whole batch: sent=%v failed=%v cause=%v", sent, failed, cause)
	}
}
