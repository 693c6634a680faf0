package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// DaySlots lists the free start times ("HH:MM") of one calendar day.
type DaySlots struct {
	Day   model.Weekday
	Times []string
}

// GenerateSlots lists the start times on date at which serviceID could still be booked.
// Only the calendar date of date is used. A date before today yields no days at all.
func (e *Engine) GenerateSlots(ctx context.Context, serviceID string, date time.Time) (days []DaySlots, err error) {
	ctx, done := e.begin(ctx, "generate_slots", attribute.String("service.id", serviceID))
	defer func() { done(err) }()

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, e.loc)
	now := e.now().In(e.loc)
	today, _ := availability.DayBounds(now, e.loc)

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		svc, err := activeService(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		if day.Before(today) {
			days = []DaySlots{}
			return nil
		}

		weekday := model.WeekdayOf(day)
		win, ok, err := tx.GetWindow(ctx, svc.ProviderID, weekday)
		if err != nil {
			return err
		}
		if !ok || !win.Enabled {
			return apperr.New(apperr.NoAvailability, "provider does not work on "+string(weekday))
		}
		provider, err := loadProvider(ctx, tx, svc.ProviderID)
		if err != nil {
			return err
		}

		dayStart, dayEnd := availability.DayBounds(day, e.loc)
		booked, err := tx.ListActive(ctx, provider.ID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		busy := make([]availability.Interval, 0, len(booked)+1)
		if lunch, ok := lunchOn(provider, day); ok {
			busy = append(busy, lunch)
		}
		for _, a := range booked {
			busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
		}

		duration := time.Duration(svc.DurationMinutes) * time.Minute
		open := availability.Interval{
			Start: availability.At(day, win.StartMinute),
			End:   availability.At(day, win.EndMinute),
		}
		starts := availability.FreeStarts(open, duration, busy, now)
		times := make([]string, 0, len(starts))
		for _, s := range starts {
			times = append(times, s.In(e.loc).Format("15:04"))
		}
		e.metrics.SlotsServed(len(times))
		days = []DaySlots{{Day: weekday, Times: times}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

func lunchOn(p model.Provider, day time.Time) (availability.Interval, bool) {
	if !p.HasLunch() {
		return availability.Interval{}, false
	}
	return availability.Interval{
		Start: availability.At(day, *p.LunchStart),
		End:   availability.At(day, *p.LunchEnd),
	}, true
}
