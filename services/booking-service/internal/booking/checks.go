package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
)

// activeService loads a service and rejects it when missing or deactivated.
func activeService(ctx context.Context, tx storage.Tx, serviceID string) (model.Service, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return model.Service{}, apperr.New(apperr.ServiceIDRequired, "serviceId is required")
	}
	svc, ok, err := tx.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if !ok {
		return model.Service{}, apperr.New(apperr.ServiceNotFound, "service not found")
	}
	if !svc.Active {
		return model.Service{}, apperr.New(apperr.ServiceInactive, "service is not active")
	}
	return svc, nil
}

func loadProvider(ctx context.Context, tx storage.Tx, providerID string) (model.Provider, error) {
	p, ok, err := tx.GetProvider(ctx, providerID)
	if err != nil {
		return model.Provider{}, err
	}
	if !ok {
		return model.Provider{}, apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return p, nil
}

// placement is the resolved service, provider and interval of a candidate booking.
type placement struct {
	service  model.Service
	provider model.Provider
	slot     availability.Interval
}

// place runs the service, business, block, availability and conflict checks for clientID
// booking serviceID at slot start, in that order. excludeID names an appointment that is
// being moved and must not conflict with itself.
func (e *Engine) place(ctx context.Context, tx storage.Tx, clientID, serviceID string, start time.Time, excludeID string) (placement, error) {
	svc, err := activeService(ctx, tx, serviceID)
	if err != nil {
		return placement{}, err
	}
	if !svc.BusinessActive {
		return placement{}, apperr.New(apperr.BusinessInactive, "business is not active")
	}
	blocked, err := tx.IsBlocked(ctx, model.BlockScope(svc.BusinessID, svc.ProviderID), clientID)
	if err != nil {
		return placement{}, err
	}
	if blocked {
		return placement{}, apperr.New(apperr.ClientBlocked, "client is blocked by this business")
	}

	if err := tx.LockProvider(ctx, svc.ProviderID); err != nil {
		return placement{}, err
	}
	provider, err := loadProvider(ctx, tx, svc.ProviderID)
	if err != nil {
		return placement{}, err
	}

	begin := start.In(e.loc)
	slot := availability.Interval{
		Start: begin,
		End:   begin.Add(serviceDuration(svc)),
	}
	if err := checkWorkingHours(ctx, tx, provider, slot); err != nil {
		return placement{}, err
	}
	if err := checkConflicts(ctx, tx, provider.ID, slot, excludeID); err != nil {
		return placement{}, err
	}
	return placement{service: svc, provider: provider, slot: slot}, nil
}

// checkWorkingHours requires the slot to sit inside the enabled window of its weekday and to
// stay clear of the lunch break.
func checkWorkingHours(ctx context.Context, tx storage.Tx, provider model.Provider, slot availability.Interval) error {
	weekday := model.WeekdayOf(slot.Start)
	win, ok, err := tx.GetWindow(ctx, provider.ID, weekday)
	if err != nil {
		return err
	}
	if !ok || !win.Enabled {
		return apperr.New(apperr.ProviderUnavailable, "provider does not work on "+string(weekday))
	}
	open := availability.Interval{
		Start: availability.At(slot.Start, win.StartMinute),
		End:   availability.At(slot.Start, win.EndMinute),
	}
	if !open.Contains(slot) {
		return apperr.New(apperr.ProviderUnavailable, "requested time is outside working hours")
	}
	if lunch, ok := lunchOn(provider, slot.Start); ok && slot.Overlaps(lunch) {
		return apperr.New(apperr.LunchBreakConflict, "requested time overlaps the lunch break")
	}
	return nil
}

func checkConflicts(ctx context.Context, tx storage.Tx, providerID string, slot availability.Interval, excludeID string) error {
	booked, err := tx.ListActive(ctx, providerID, slot.Start, slot.End)
	if err != nil {
		return err
	}
	for _, a := range booked {
		if a.ID == excludeID {
			continue
		}
		if slot.Overlaps(availability.Interval{Start: a.StartTime, End: a.EndTime}) {
			return apperr.New(apperr.SlotConflict, "slot already taken")
		}
	}
	return nil
}

func serviceDuration(svc model.Service) time.Duration {
	return time.Duration(svc.DurationMinutes) * time.Minute
}

// authorize admits admins, the appointment's client and its provider, restricted to roles.
func authorize(p model.Principal, appt model.Appointment, roles ...model.Role) error {
	if !p.Is(roles...) {
		return apperr.New(apperr.Forbidden, "not allowed")
	}
	switch p.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleClient:
		if p.UserID == appt.ClientID {
			return nil
		}
	case model.RoleProvider:
		if p.UserID == appt.ProviderID {
			return nil
		}
	}
	return apperr.New(apperr.Forbidden, "not allowed")
}
