package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "catalog.service.upserted.v1", Key: []byte("svc-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "svc-1" || meta.EventType != "catalog.service.upserted.v1" {
		t.Fatalf("unexpected fallback meta %+v", meta)
	}

	msg.Headers = EventHeaders("evt-9", "catalog.business.upserted.v1")
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-9" || meta.EventType != "catalog.business.upserted.v1" {
		t.Fatalf("unexpected header meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092,kafka-1:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestExtractEventMetaWithoutKey(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "catalog.provider.upserted.v1", Partition: 2, Offset: 41})
	if meta.EventID != "catalog.provider.upserted.v1/2/41" {
		t.Fatalf("unexpected positional id %q", meta.EventID)
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(" , ")(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
