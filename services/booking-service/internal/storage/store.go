package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

// Store runs units of work. Everything fn does through tx commits together or not at all;
// a Postgres store may rerun fn from scratch after a transient conflict, so fn must not
// have side effects outside tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes available inside a unit of work. Lookups return
// ok=false when the row does not exist.
type Tx interface {
	// Catalog reads.
	GetService(ctx context.Context, id string) (model.Service, bool, error)
	GetProvider(ctx context.Context, id string) (model.Provider, bool, error)
	GetWindow(ctx context.Context, providerID string, day model.Weekday) (model.AvailabilityWindow, bool, error)
	ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	ServiceTitleTaken(ctx context.Context, businessID, providerID, title, excludeID string) (bool, error)

	// Catalog writes.
	UpsertBusiness(ctx context.Context, b model.Business) error
	UpsertProvider(ctx context.Context, p model.Provider) error
	SetLunch(ctx context.Context, providerID string, start, end *int) error
	UpsertWindow(ctx context.Context, w model.AvailabilityWindow) error
	SetWindowEnabled(ctx context.Context, providerID string, day model.Weekday, enabled bool) (bool, error)
	SaveService(ctx context.Context, s model.Service) error

	// LockProvider serializes bookings against one provider until the unit of work ends.
	LockProvider(ctx context.Context, providerID string) error
	// LockClient serializes quota checks for one client until the unit of work ends.
	LockClient(ctx context.Context, clientID string) error

	// Appointments.
	CountPending(ctx context.Context, clientID string) (int, error)
	ListActive(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, a model.Appointment) error
	GetAppointment(ctx context.Context, id string, forUpdate bool) (model.Appointment, bool, error)
	UpdateAppointmentSlot(ctx context.Context, a model.Appointment) error
	TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time, reason string) (bool, error)
	CancelPendingForClient(ctx context.Context, scopeID, clientID string, at time.Time, reason string) (int, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error)

	// Blocks.
	IsBlocked(ctx context.Context, scopeID, clientID string) (bool, error)
	UpsertBlock(ctx context.Context, b model.BlockedClient) error
}
