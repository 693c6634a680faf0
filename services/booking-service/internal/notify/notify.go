// Package notify delivers booking confirmations. Delivery is owned by the notification
// service downstream; this side only emits the event.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/outbox"
)

const EventBookingConfirmed = "booking.appointment.confirmed.v1"

// BookingConfirmedPayload is the JSON body of EventBookingConfirmed.
type BookingConfirmedPayload struct {
	AppointmentID string `json:"appointment_id"`
	ClientID      string `json:"client_id"`
	ClientName    string `json:"client_name"`
	ServiceID     string `json:"service_id"`
	ServiceTitle  string `json:"service_title"`
	ProviderID    string `json:"provider_id"`
	BusinessID    string `json:"business_id,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func NewPayload(appt model.Appointment) BookingConfirmedPayload {
	return BookingConfirmedPayload{
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		ClientName:    appt.ClientName,
		ServiceID:     appt.ServiceID,
		ServiceTitle:  appt.ServiceTitle,
		ProviderID:    appt.ProviderID,
		BusinessID:    appt.BusinessID,
		StartTime:     appt.StartTime.Format(time.RFC3339),
		EndTime:       appt.EndTime.Format(time.RFC3339),
	}
}

type outboxAdder interface {
	Add(ctx context.Context, msg outbox.Message) error
}

// OutboxNotifier records the confirmation in the outbox; the publisher ships it to Kafka.
type OutboxNotifier struct {
	outbox outboxAdder
}

func NewOutboxNotifier(store *outbox.Store) *OutboxNotifier {
	return &OutboxNotifier{outbox: store}
}

func (n *OutboxNotifier) BookingConfirmed(ctx context.Context, appt model.Appointment) error {
	payload, err := json.Marshal(NewPayload(appt))
	if err != nil {
		return err
	}
	return n.outbox.Add(ctx, outbox.Message{
		Topic:   EventBookingConfirmed,
		Key:     appt.ID,
		Payload: payload,
	})
}

// LogNotifier only logs; used when running without a database.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BookingConfirmed(_ context.Context, appt model.Appointment) error {
	n.logger.Info("booking confirmed", "event_type", EventBookingConfirmed, "appointment_id", appt.ID,
		"client_id", appt.ClientID, "start_time", appt.StartTime.Format(time.RFC3339))
	return nil
}
