package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/outbox"
)

type captureOutbox struct {
	msgs []outbox.Message
}

func (c *captureOutbox) Add(_ context.Context, msg outbox.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestOutboxNotifierWritesConfirmedEvent(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)
	capture := &captureOutbox{}
	n := &OutboxNotifier{outbox: capture}

	err := n.BookingConfirmed(context.Background(), model.Appointment{
		ID: "a1", ClientID: "c1", ClientName: "Maria", ServiceID: "s1", ServiceTitle: "Corte",
		ProviderID: "p1", StartTime: start, EndTime: start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(capture.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(capture.msgs))
	}
	evt := capture.msgs[0]
	if evt.Topic != EventBookingConfirmed || evt.Key != "a1" {
		t.Fatalf("unexpected message %+v", evt)
	}
	var payload BookingConfirmedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.StartTime != "2026-03-02T10:00:00-03:00" || payload.BusinessID != "" || payload.ClientName != "Maria" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
