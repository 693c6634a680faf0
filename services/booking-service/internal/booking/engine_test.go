package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
)

var brt = time.FixedZone("BRT", -3*3600)

// monday returns a wall-clock time on Monday 2026-03-02.
func monday(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, brt)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []model.Appointment
	err error
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, appt model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, appt)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type fixture struct {
	engine   *Engine
	store    *storage.Memory
	clock    *fakeClock
	notifier *recordingNotifier
}

func client(id string) model.Principal {
	return model.Principal{UserID: id, Name: "Client " + id, Role: model.RoleClient}
}

var (
	provider1 = model.Principal{UserID: "p1", Name: "Ana", Role: model.RoleProvider}
	provider2 = model.Principal{UserID: "p2", Name: "Bia", Role: model.RoleProvider}
	admin     = model.Principal{UserID: "root", Role: model.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory()
	lunchStart, lunchEnd := 12*60, 13*60

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		for _, b := range []model.Business{{ID: "b1", Active: true}, {ID: "b2", Active: true}, {ID: "b-off", Active: false}} {
			if err := tx.UpsertBusiness(ctx, b); err != nil {
				return err
			}
		}
		providers := []model.Provider{
			{ID: "p1", BusinessID: "b1", Name: "Ana"},
			{ID: "p2", BusinessID: "b2", Name: "Bia"},
			{ID: "p3", BusinessID: "b-off", Name: "Caio"},
		}
		for _, p := range providers {
			if err := tx.UpsertProvider(ctx, p); err != nil {
				return err
			}
			for _, day := range []model.Weekday{model.Segunda, model.Terca, model.Quarta, model.Quinta, model.Sexta} {
				if err := tx.UpsertWindow(ctx, model.AvailabilityWindow{
					ProviderID: p.ID, Weekday: day, StartMinute: 9 * 60, EndMinute: 18 * 60, Enabled: true,
				}); err != nil {
					return err
				}
			}
		}
		if err := tx.UpsertWindow(ctx, model.AvailabilityWindow{
			ProviderID: "p1", Weekday: model.Sabado, StartMinute: 9 * 60, EndMinute: 12 * 60, Enabled: false,
		}); err != nil {
			return err
		}
		if err := tx.SetLunch(ctx, "p1", &lunchStart, &lunchEnd); err != nil {
			return err
		}
		services := []model.Service{
			{ID: "s30", BusinessID: "b1", ProviderID: "p1", Title: "Corte", DurationMinutes: 30, Active: true},
			{ID: "s60", BusinessID: "b1", ProviderID: "p1", Title: "Coloracao", DurationMinutes: 60, Active: true},
			{ID: "s-off", BusinessID: "b1", ProviderID: "p1", Title: "Antigo", DurationMinutes: 30, Active: false},
			{ID: "s-p2", BusinessID: "b2", ProviderID: "p2", Title: "Barba", DurationMinutes: 30, Active: true},
			{ID: "s-p3", BusinessID: "b-off", ProviderID: "p3", Title: "Unha", DurationMinutes: 30, Active: true},
		}
		for _, s := range services {
			if err := tx.SaveService(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	clock := &fakeClock{t: monday(8, 0)}
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(store, notifier, logger, nil, Config{Location: brt, Now: clock.Now})
	return &fixture{engine: engine, store: store, clock: clock, notifier: notifier}
}

func (f *fixture) book(t *testing.T, p model.Principal, serviceID string, start time.Time) model.Appointment {
	t.Helper()
	appt, err := f.engine.CreateBooking(context.Background(), p, CreateInput{ServiceID: serviceID, StartTime: start})
	if err != nil {
		t.Fatalf("book %s at %s: %v", serviceID, start.Format("15:04"), err)
	}
	return appt
}

func expectCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestGenerateSlotsSkipsLunch(t *testing.T) {
	f := newFixture(t)
	days, err := f.engine.GenerateSlots(context.Background(), "s30", monday(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 1 || days[0].Day != model.Segunda {
		t.Fatalf("expected one SEGUNDA group, got %+v", days)
	}
	times := days[0].Times
	if len(times) != 16 {
		t.Fatalf("expected 16 slots, got %d: %v", len(times), times)
	}
	if times[0] != "09:00" || times[5] != "11:30" || times[6] != "13:00" || times[15] != "17:30" {
		t.Fatalf("unexpected grid %v", times)
	}
	for _, tm := range times {
		if tm == "12:00" || tm == "12:30" {
			t.Fatalf("lunch slot %s offered", tm)
		}
	}
}

func TestGenerateSlotsStepsByDuration(t *testing.T) {
	f := newFixture(t)
	days, err := f.engine.GenerateSlots(context.Background(), "s60", monday(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00", "17:00"}
	got := days[0].Times
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestGenerateSlotsExcludesBookedAndPast(t *testing.T) {
	f := newFixture(t)
	f.book(t, client("c1"), "s30", monday(10, 0))
	f.clock.Set(monday(9, 40))

	days, err := f.engine.GenerateSlots(context.Background(), "s30", monday(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	times := days[0].Times
	if times[0] != "10:30" {
		t.Fatalf("expected first free slot 10:30, got %v", times)
	}
	for _, tm := range times {
		if tm == "10:00" || tm == "09:00" || tm == "09:30" {
			t.Fatalf("slot %s should not be offered: %v", tm, times)
		}
	}
}

func TestGenerateSlotsPastDateIsEmpty(t *testing.T) {
	f := newFixture(t)
	days, err := f.engine.GenerateSlots(context.Background(), "s30", time.Date(2026, 2, 27, 0, 0, 0, 0, brt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days == nil || len(days) != 0 {
		t.Fatalf("expected empty, non-nil result, got %+v", days)
	}
}

func TestGenerateSlotsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.GenerateSlots(ctx, "missing", monday(0, 0))
	expectCode(t, err, apperr.ServiceNotFound)

	_, err = f.engine.GenerateSlots(ctx, "s-off", monday(0, 0))
	expectCode(t, err, apperr.ServiceInactive)

	// Sunday has no window, Saturday's is disabled.
	_, err = f.engine.GenerateSlots(ctx, "s30", time.Date(2026, 3, 8, 0, 0, 0, 0, brt))
	expectCode(t, err, apperr.NoAvailability)
	_, err = f.engine.GenerateSlots(ctx, "s30", time.Date(2026, 3, 7, 0, 0, 0, 0, brt))
	expectCode(t, err, apperr.NoAvailability)
}

func TestCreateBookingPersistsPending(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, client("c1"), "s30", monday(10, 0))

	if appt.Status != model.StatusPending {
		t.Fatalf("expected PENDING, got %s", appt.Status)
	}
	if !appt.EndTime.Equal(monday(10, 30)) {
		t.Fatalf("expected end 10:30, got %s", appt.EndTime)
	}
	if appt.ClientName != "Client c1" || appt.ServiceTitle != "Corte" || appt.ProviderID != "p1" || appt.BusinessID != "b1" {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	f.engine.Wait()
	if f.notifier.count() != 1 {
		t.Fatalf("expected one confirmation, got %d", f.notifier.count())
	}

	stored, err := f.engine.GetAppointment(context.Background(), client("c1"), appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ServiceTitle != "Corte" || stored.Status != model.StatusPending {
		t.Fatalf("unexpected stored appointment %+v", stored)
	}
}

func TestCreateBookingNotifierFailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	appt := f.book(t, client("c1"), "s30", monday(10, 0))
	f.engine.Wait()

	if _, err := f.engine.GetAppointment(context.Background(), admin, appt.ID); err != nil {
		t.Fatalf("booking should survive notifier failure: %v", err)
	}
}

func TestCreateBookingRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, client("other"), "s30", monday(10, 0))

	cases := []struct {
		name    string
		p       model.Principal
		service string
		start   time.Time
		want    apperr.Code
	}{
		{"provider cannot book", provider1, "s30", monday(14, 0), apperr.Forbidden},
		{"missing service", client("c1"), "  ", monday(14, 0), apperr.ServiceIDRequired},
		{"start equals now", client("c1"), "s30", monday(8, 0), apperr.StartInPast},
		{"start in past", client("c1"), "s30", monday(7, 0), apperr.StartInPast},
		{"unknown service", client("c1"), "nope", monday(14, 0), apperr.ServiceNotFound},
		{"inactive service", client("c1"), "s-off", monday(14, 0), apperr.ServiceInactive},
		{"inactive business", client("c1"), "s-p3", monday(14, 0), apperr.BusinessInactive},
		{"before opening", client("c1"), "s30", monday(8, 30), apperr.ProviderUnavailable},
		{"runs past closing", client("c1"), "s30", monday(17, 45), apperr.ProviderUnavailable},
		{"closed weekday", client("c1"), "s30", time.Date(2026, 3, 8, 10, 0, 0, 0, brt), apperr.ProviderUnavailable},
		{"lunch", client("c1"), "s30", monday(11, 45), apperr.LunchBreakConflict},
		{"overlap", client("c1"), "s30", monday(10, 15), apperr.SlotConflict},
		{"long service overlaps", client("c1"), "s60", monday(9, 30), apperr.SlotConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateBooking(ctx, tc.p, CreateInput{ServiceID: tc.service, StartTime: tc.start})
			expectCode(t, err, tc.want)
		})
	}
}

func TestCreateBookingTouchingSlotsAllowed(t *testing.T) {
	f := newFixture(t)
	f.book(t, client("c1"), "s30", monday(10, 0))
	f.book(t, client("c2"), "s30", monday(10, 30))
	f.book(t, client("c3"), "s30", monday(9, 30))
	// Ends exactly when lunch starts.
	f.book(t, client("c4"), "s30", monday(11, 30))
}

func TestCreateBookingPendingLimitCheckedFirst(t *testing.T) {
	f := newFixture(t)
	c := client("c1")
	for i, start := range []time.Time{monday(9, 0), monday(9, 30), monday(10, 0), monday(10, 30)} {
		if _, err := f.engine.CreateBooking(context.Background(), c, CreateInput{ServiceID: "s30", StartTime: start}); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}
	// The quota check precedes every other check, including the missing service id.
	_, err := f.engine.CreateBooking(context.Background(), c, CreateInput{StartTime: monday(7, 0)})
	expectCode(t, err, apperr.TooManyPending)

	// Concluding one frees a slot in the quota.
	list, err := f.engine.ListClientAppointments(context.Background(), c)
	if err != nil || len(list) != 4 {
		t.Fatalf("expected 4 appointments, got %d (%v)", len(list), err)
	}
	if _, err := f.engine.Conclude(context.Background(), provider1, list[0].ID); err != nil {
		t.Fatalf("conclude: %v", err)
	}
	f.book(t, c, "s30", monday(14, 0))
}

func TestCreateBookingClientBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.BlockClient(ctx, provider1, "p1", "c1"); err != nil {
		t.Fatalf("block: %v", err)
	}
	_, err := f.engine.CreateBooking(ctx, client("c1"), CreateInput{ServiceID: "s30", StartTime: monday(14, 0)})
	expectCode(t, err, apperr.ClientBlocked)

	// Other businesses are unaffected.
	f.book(t, client("c1"), "s-p2", monday(14, 0))
}

func TestConcurrentBookingsSameSlot(t *testing.T) {
	f := newFixture(t)
	const n = 10

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.CreateBooking(context.Background(), client(string(rune('a'+i))), CreateInput{
				ServiceID: "s30",
				StartTime: monday(10, 0),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.HasCode(err, apperr.SlotConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one booking, got %d", ok)
	}

	// Adjacent slots never conflict with each other.
	var adj sync.WaitGroup
	adjErrs := make(chan error, 2)
	for i, start := range []time.Time{monday(14, 0), monday(14, 30)} {
		adj.Add(1)
		go func(i int, start time.Time) {
			defer adj.Done()
			_, err := f.engine.CreateBooking(context.Background(), client("adj"+string(rune('0'+i))), CreateInput{ServiceID: "s30", StartTime: start})
			adjErrs <- err
		}(i, start)
	}
	adj.Wait()
	close(adjErrs)
	for err := range adjErrs {
		if err != nil {
			t.Fatalf("adjacent booking failed: %v", err)
		}
	}
}

func TestConcurrentOverlappingBookings(t *testing.T) {
	// 10:00-11:00 and 10:30-11:30 overlap without sharing a start: exactly one may commit.
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for i, start := range []time.Time{monday(10, 0), monday(10, 30)} {
			wg.Add(1)
			go func(i int, start time.Time) {
				defer wg.Done()
				_, err := f.engine.CreateBooking(context.Background(), client("race"+string(rune('0'+i))), CreateInput{
					ServiceID: "s60",
					StartTime: start,
				})
				errs <- err
			}(i, start)
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case apperr.HasCode(err, apperr.SlotConflict):
			default:
				t.Fatalf("round %d: unexpected error: %v", round, err)
			}
		}
		if ok != 1 {
			t.Fatalf("round %d: expected exactly one booking, got %d", round, ok)
		}
		f.engine.Wait()
	}
}

func TestUpdateBookingExcludesOwnSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, client("c1"), "s30", monday(10, 0))

	start := monday(10, 15)
	moved, err := f.engine.UpdateBooking(ctx, client("c1"), appt.ID, UpdateInput{StartTime: &start})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !moved.StartTime.Equal(start) || !moved.EndTime.Equal(monday(10, 45)) {
		t.Fatalf("unexpected times %s-%s", moved.StartTime, moved.EndTime)
	}

	svc := "s60"
	moved, err = f.engine.UpdateBooking(ctx, provider1, appt.ID, UpdateInput{ServiceID: &svc})
	if err != nil {
		t.Fatalf("change service: %v", err)
	}
	if moved.ServiceID != "s60" || !moved.EndTime.Equal(monday(11, 15)) {
		t.Fatalf("unexpected appointment after service change %+v", moved)
	}

	// The old slot is free again.
	f.book(t, client("c2"), "s30", monday(9, 30))
}

func TestUpdateBookingRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, client("c1"), "s30", monday(10, 0))
	other := f.book(t, client("c2"), "s30", monday(11, 0))

	start := monday(11, 15)
	_, err := f.engine.UpdateBooking(ctx, client("c1"), appt.ID, UpdateInput{StartTime: &start})
	expectCode(t, err, apperr.SlotConflict)

	_, err = f.engine.UpdateBooking(ctx, client("c2"), appt.ID, UpdateInput{StartTime: &start})
	expectCode(t, err, apperr.Forbidden)

	_, err = f.engine.UpdateBooking(ctx, provider2, appt.ID, UpdateInput{StartTime: &start})
	expectCode(t, err, apperr.Forbidden)

	_, err = f.engine.UpdateBooking(ctx, client("c1"), "missing", UpdateInput{StartTime: &start})
	expectCode(t, err, apperr.AppointmentNotFound)

	foreign := "s-p2"
	_, err = f.engine.UpdateBooking(ctx, provider1, appt.ID, UpdateInput{ServiceID: &foreign})
	expectCode(t, err, apperr.Forbidden)
	if got, err := f.engine.GetAppointment(ctx, admin, appt.ID); err != nil || got.ProviderID != "p1" || got.ServiceID != "s30" {
		t.Fatalf("appointment moved out of p1's agenda: %+v (%v)", got, err)
	}

	lunch := monday(12, 15)
	_, err = f.engine.UpdateBooking(ctx, admin, appt.ID, UpdateInput{StartTime: &lunch})
	expectCode(t, err, apperr.LunchBreakConflict)

	if _, err := f.engine.Cancel(ctx, client("c2"), other.ID, "changed plans"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = f.engine.UpdateBooking(ctx, client("c2"), other.ID, UpdateInput{StartTime: &start})
	expectCode(t, err, apperr.CannotModifyFinalized)

	// The cancelled slot can be taken now.
	if _, err := f.engine.UpdateBooking(ctx, client("c1"), appt.ID, UpdateInput{StartTime: &start}); err != nil {
		t.Fatalf("move into cancelled slot: %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, client("c1"), "s30", monday(10, 0))

	_, err := f.engine.Conclude(ctx, client("c1"), appt.ID)
	expectCode(t, err, apperr.Forbidden)

	_, err = f.engine.Conclude(ctx, provider2, appt.ID)
	expectCode(t, err, apperr.Forbidden)

	done, err := f.engine.Conclude(ctx, provider1, appt.ID)
	if err != nil {
		t.Fatalf("conclude: %v", err)
	}
	if done.Status != model.StatusConcluded || done.ConcludedAt == nil {
		t.Fatalf("unexpected concluded appointment %+v", done)
	}

	_, err = f.engine.Conclude(ctx, provider1, appt.ID)
	expectCode(t, err, apperr.CannotModifyFinalized)
	_, err = f.engine.Cancel(ctx, client("c1"), appt.ID, "")
	expectCode(t, err, apperr.CannotModifyFinalized)

	second := f.book(t, client("c1"), "s30", monday(15, 0))
	cancelled, err := f.engine.Cancel(ctx, client("c1"), second.ID, " sick ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelReason != "sick" {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}
	_, err = f.engine.Conclude(ctx, admin, second.ID)
	expectCode(t, err, apperr.CannotModifyFinalized)
}

func TestConcludeExpiredAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.book(t, client("c1"), "s30", monday(9, 0))
	mid := f.book(t, client("c2"), "s60", monday(10, 0))
	late := f.book(t, client("c3"), "s30", monday(16, 0))
	cancelled := f.book(t, client("c4"), "s30", monday(9, 30))
	if _, err := f.engine.Cancel(ctx, client("c4"), cancelled.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// 11:00 is exactly the end of the 10:00 hour-long appointment.
	f.clock.Set(monday(11, 0))
	res, err := f.engine.ConcludeExpiredAppointments(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Concluded != 2 || res.Failed != 0 {
		t.Fatalf("unexpected sweep result %+v", res)
	}

	for id, want := range map[string]model.Status{
		early.ID:     model.StatusConcluded,
		mid.ID:       model.StatusConcluded,
		late.ID:      model.StatusPending,
		cancelled.ID: model.StatusCancelled,
	} {
		got, err := f.engine.GetAppointment(ctx, admin, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("appointment %s: expected %s, got %s", id, want, got.Status)
		}
	}

	res, err = f.engine.ConcludeExpiredAppointments(ctx)
	if err != nil || res.Concluded != 0 {
		t.Fatalf("second sweep should be a no-op, got %+v %v", res, err)
	}
}

func TestConcludeExpiredAppointmentsPages(t *testing.T) {
	f := newFixture(t)
	f.engine.batchSize = 2
	for i, h := range []int{9, 10, 11, 13, 14} {
		f.book(t, client(string(rune('a'+i))), "s30", monday(h, 0))
	}
	f.clock.Set(monday(18, 0))
	res, err := f.engine.ConcludeExpiredAppointments(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Concluded != 5 {
		t.Fatalf("expected 5 concluded across pages, got %+v", res)
	}
}

func TestBlockClientCancelsPendingInScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, client("c1"), "s30", monday(10, 0))
	b := f.book(t, client("c1"), "s60", monday(14, 0))
	elsewhere := f.book(t, client("c1"), "s-p2", monday(10, 0))
	concluded := f.book(t, client("c1"), "s30", monday(9, 0))
	if _, err := f.engine.Conclude(ctx, provider1, concluded.ID); err != nil {
		t.Fatalf("conclude: %v", err)
	}

	_, err := f.engine.BlockClient(ctx, client("c1"), "p1", "c1")
	expectCode(t, err, apperr.Forbidden)
	_, err = f.engine.BlockClient(ctx, provider2, "p1", "c1")
	expectCode(t, err, apperr.Forbidden)

	n, err := f.engine.BlockClient(ctx, provider1, "p1", "c1")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cancellations, got %d", n)
	}
	for id, want := range map[string]model.Status{
		a.ID:         model.StatusCancelled,
		b.ID:         model.StatusCancelled,
		elsewhere.ID: model.StatusPending,
		concluded.ID: model.StatusConcluded,
	} {
		got, err := f.engine.GetAppointment(ctx, admin, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != want {
			t.Fatalf("appointment %s: expected %s, got %s", id, want, got.Status)
		}
	}

	if err := f.engine.UnblockClient(ctx, provider1, "p1", "c1"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	got, _ := f.engine.GetAppointment(ctx, admin, a.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("unblock must not restore appointments, got %s", got.Status)
	}
	f.book(t, client("c1"), "s30", monday(10, 0))

	_, err = f.engine.BlockClient(ctx, admin, "ghost", "c1")
	expectCode(t, err, apperr.ProviderNotFound)
	_, err = f.engine.BlockClient(ctx, admin, "p1", " ")
	expectCode(t, err, apperr.InvalidInput)
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, client("c1"), "s30", monday(10, 0))
	f.book(t, client("c1"), "s-p2", monday(11, 0))
	f.book(t, client("c2"), "s30", monday(15, 0))

	mine, err := f.engine.ListClientAppointments(ctx, client("c1"))
	if err != nil || len(mine) != 2 {
		t.Fatalf("expected 2 client appointments, got %d (%v)", len(mine), err)
	}
	if !mine[0].StartTime.After(mine[1].StartTime) {
		t.Fatal("expected newest first")
	}

	agenda, err := f.engine.ListProviderAppointments(ctx, provider1)
	if err != nil || len(agenda) != 2 {
		t.Fatalf("expected 2 provider appointments, got %d (%v)", len(agenda), err)
	}

	_, err = f.engine.ListProviderAppointments(ctx, client("c1"))
	expectCode(t, err, apperr.Forbidden)
	_, err = f.engine.ListClientAppointments(ctx, provider1)
	expectCode(t, err, apperr.Forbidden)
}
