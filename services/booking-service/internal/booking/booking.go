package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type CreateInput struct {
	ServiceID string
	StartTime time.Time
}

// UpdateInput changes the service, the start time, or both. Nil fields keep the current value.
type UpdateInput struct {
	ServiceID *string
	StartTime *time.Time
}

// CreateBooking books serviceID at in.StartTime for the calling client. Checks run in a fixed
// order and the first failure is returned; the appointment is created PENDING.
func (e *Engine) CreateBooking(ctx context.Context, p model.Principal, in CreateInput) (appt model.Appointment, err error) {
	ctx, done := e.begin(ctx, "create_booking",
		attribute.String("client.id", p.UserID),
		attribute.String("service.id", in.ServiceID),
	)
	defer func() { done(err) }()

	if !p.Is(model.RoleClient) {
		return model.Appointment{}, apperr.New(apperr.Forbidden, "only clients can book")
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockClient(ctx, p.UserID); err != nil {
			return err
		}
		pending, err := tx.CountPending(ctx, p.UserID)
		if err != nil {
			return err
		}
		if pending >= e.maxPending {
			return apperr.New(apperr.TooManyPending, fmt.Sprintf("a client may hold at most %d pending appointments", e.maxPending))
		}
		if strings.TrimSpace(in.ServiceID) == "" {
			return apperr.New(apperr.ServiceIDRequired, "serviceId is required")
		}
		now := e.now()
		if !in.StartTime.After(now) {
			return apperr.New(apperr.StartInPast, "start time must be in the future")
		}

		pl, err := e.place(ctx, tx, p.UserID, in.ServiceID, in.StartTime, "")
		if err != nil {
			return err
		}

		appt = model.Appointment{
			ID:           uuid.NewString(),
			ClientID:     p.UserID,
			ClientName:   p.Name,
			ServiceID:    pl.service.ID,
			ServiceTitle: pl.service.Title,
			ProviderID:   pl.provider.ID,
			BusinessID:   pl.service.BusinessID,
			StartTime:    pl.slot.Start,
			EndTime:      pl.slot.End,
			Status:       model.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.InsertAppointment(ctx, appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"client_id", appt.ClientID,
		"provider_id", appt.ProviderID,
		"start_time", appt.StartTime.Format(time.RFC3339),
	)
	e.metrics.Transition(string(model.StatusPending))
	e.notifyConfirmed(ctx, appt)
	return appt, nil
}

// UpdateBooking moves a pending appointment to another service and/or start time. The new
// placement goes through the same service, business, block, working hours and conflict
// checks as a new booking, ignoring the appointment's own current slot.
func (e *Engine) UpdateBooking(ctx context.Context, p model.Principal, id string, in UpdateInput) (appt model.Appointment, err error) {
	ctx, done := e.begin(ctx, "update_booking", attribute.String("appointment.id", id))
	defer func() { done(err) }()

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := loadAppointment(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := authorize(p, cur, model.RoleClient, model.RoleProvider, model.RoleAdmin); err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return apperr.New(apperr.CannotModifyFinalized, "appointment is already "+string(cur.Status))
		}

		serviceID := cur.ServiceID
		if in.ServiceID != nil && strings.TrimSpace(*in.ServiceID) != "" {
			serviceID = strings.TrimSpace(*in.ServiceID)
		}
		start := cur.StartTime
		if in.StartTime != nil {
			start = *in.StartTime
		}

		// A provider may only move appointments within its own agenda.
		if p.Role == model.RoleProvider {
			svc, err := activeService(ctx, tx, serviceID)
			if err != nil {
				return err
			}
			if svc.ProviderID != p.UserID {
				return apperr.New(apperr.Forbidden, "service belongs to another provider")
			}
		}

		pl, err := e.place(ctx, tx, cur.ClientID, serviceID, start, cur.ID)
		if err != nil {
			return err
		}

		cur.ServiceID = pl.service.ID
		cur.ServiceTitle = pl.service.Title
		cur.ProviderID = pl.provider.ID
		cur.BusinessID = pl.service.BusinessID
		cur.StartTime = pl.slot.Start
		cur.EndTime = pl.slot.End
		cur.UpdatedAt = e.now()
		if err := tx.UpdateAppointmentSlot(ctx, cur); err != nil {
			return err
		}
		appt = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	e.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"by", p.UserID,
		"start_time", appt.StartTime.Format(time.RFC3339),
	)
	return appt, nil
}

func loadAppointment(ctx context.Context, tx storage.Tx, id string, forUpdate bool) (model.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Appointment{}, apperr.New(apperr.AppointmentNotFound, "appointment not found")
	}
	a, ok, err := tx.GetAppointment(ctx, id, forUpdate)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, apperr.New(apperr.AppointmentNotFound, "appointment not found")
	}
	return a, nil
}
