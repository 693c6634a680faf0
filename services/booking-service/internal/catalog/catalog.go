// Package catalog manages what providers offer: weekly availability windows, the lunch
// break and services.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
)

type Manager struct {
	store  storage.Store
	logger *slog.Logger
}

func NewManager(store storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

type WindowInput struct {
	Weekday     model.Weekday
	StartMinute int
	EndMinute   int
	Enabled     bool
}

// UpsertAvailability creates or replaces the provider's window for one weekday.
func (m *Manager) UpsertAvailability(ctx context.Context, p model.Principal, providerID string, in WindowInput) (model.AvailabilityWindow, error) {
	if err := canManage(p, providerID); err != nil {
		return model.AvailabilityWindow{}, err
	}
	if in.Weekday.Index() < 0 {
		return model.AvailabilityWindow{}, apperr.New(apperr.InvalidInput, "unknown weekday")
	}
	if !availability.ValidRange(in.StartMinute, in.EndMinute) {
		return model.AvailabilityWindow{}, apperr.New(apperr.InvalidWindow, "start must be before end")
	}
	w := model.AvailabilityWindow{
		ProviderID:  providerID,
		Weekday:     in.Weekday,
		StartMinute: in.StartMinute,
		EndMinute:   in.EndMinute,
		Enabled:     in.Enabled,
	}
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := providerOf(ctx, tx, providerID); err != nil {
			return err
		}
		return tx.UpsertWindow(ctx, w)
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	m.logger.Info("availability saved", "provider_id", providerID, "weekday", w.Weekday,
		"start", availability.FormatClock(w.StartMinute), "end", availability.FormatClock(w.EndMinute), "enabled", w.Enabled)
	return w, nil
}

// SetAvailabilityEnabled toggles an existing window without touching its hours.
func (m *Manager) SetAvailabilityEnabled(ctx context.Context, p model.Principal, providerID string, day model.Weekday, enabled bool) error {
	if err := canManage(p, providerID); err != nil {
		return err
	}
	return m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.SetWindowEnabled(ctx, providerID, day, enabled)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.NoAvailability, "no availability registered for "+string(day))
		}
		return nil
	})
}

func (m *Manager) ListAvailability(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := providerOf(ctx, tx, providerID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListWindows(ctx, providerID)
		return err
	})
	return out, err
}

func (m *Manager) GetProvider(ctx context.Context, providerID string) (model.Provider, error) {
	var out model.Provider
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = providerOf(ctx, tx, providerID)
		return err
	})
	return out, err
}

func (m *Manager) SetLunchBreak(ctx context.Context, p model.Principal, providerID string, start, end int) error {
	if err := canManage(p, providerID); err != nil {
		return err
	}
	if !availability.ValidRange(start, end) {
		return apperr.New(apperr.InvalidWindow, "lunch start must be before lunch end")
	}
	return m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetLunch(ctx, providerID, &start, &end)
	})
}

func (m *Manager) ClearLunchBreak(ctx context.Context, p model.Principal, providerID string) error {
	if err := canManage(p, providerID); err != nil {
		return err
	}
	return m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetLunch(ctx, providerID, nil, nil)
	})
}

type ServiceInput struct {
	// ProviderID is only honoured for admins; providers always create for themselves.
	ProviderID      string
	Title           string
	Description     string
	PriceMinor      int64
	DurationMinutes int
}

func (in *ServiceInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return apperr.New(apperr.InvalidInput, "title is required")
	}
	if in.DurationMinutes <= 0 {
		return apperr.New(apperr.InvalidDuration, "duration must be greater than zero")
	}
	if in.PriceMinor < 0 {
		return apperr.New(apperr.InvalidInput, "price must not be negative")
	}
	return nil
}

func (m *Manager) CreateService(ctx context.Context, p model.Principal, in ServiceInput) (model.Service, error) {
	providerID := p.UserID
	if p.Role == model.RoleAdmin {
		providerID = strings.TrimSpace(in.ProviderID)
		if providerID == "" {
			return model.Service{}, apperr.New(apperr.InvalidInput, "providerId is required")
		}
	}
	if err := canManage(p, providerID); err != nil {
		return model.Service{}, err
	}
	if err := in.normalize(); err != nil {
		return model.Service{}, err
	}

	var svc model.Service
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		provider, err := providerOf(ctx, tx, providerID)
		if err != nil {
			return err
		}
		taken, err := tx.ServiceTitleTaken(ctx, provider.BusinessID, provider.ID, in.Title, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.DuplicateTitle, "a service with this title already exists")
		}
		svc = model.Service{
			ID:              uuid.NewString(),
			BusinessID:      provider.BusinessID,
			ProviderID:      provider.ID,
			Title:           in.Title,
			Description:     in.Description,
			PriceMinor:      in.PriceMinor,
			DurationMinutes: in.DurationMinutes,
			Active:          true,
		}
		return tx.SaveService(ctx, svc)
	})
	if err != nil {
		return model.Service{}, err
	}
	m.logger.Info("service created", "service_id", svc.ID, "provider_id", svc.ProviderID)
	return svc, nil
}

// UpdateService replaces title, description, price and duration. Existing appointments keep
// the end time computed when they were booked.
func (m *Manager) UpdateService(ctx context.Context, p model.Principal, id string, in ServiceInput) (model.Service, error) {
	if err := in.normalize(); err != nil {
		return model.Service{}, err
	}
	var svc model.Service
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := serviceOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := canManage(p, cur.ProviderID); err != nil {
			return err
		}
		taken, err := tx.ServiceTitleTaken(ctx, cur.BusinessID, cur.ProviderID, in.Title, cur.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.DuplicateTitle, "a service with this title already exists")
		}
		cur.Title = in.Title
		cur.Description = in.Description
		cur.PriceMinor = in.PriceMinor
		cur.DurationMinutes = in.DurationMinutes
		svc = cur
		return tx.SaveService(ctx, cur)
	})
	return svc, err
}

func (m *Manager) DeactivateService(ctx context.Context, p model.Principal, id string) error {
	return m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := serviceOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := canManage(p, cur.ProviderID); err != nil {
			return err
		}
		cur.Active = false
		return tx.SaveService(ctx, cur)
	})
}

func (m *Manager) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		svc, err = serviceOf(ctx, tx, id)
		return err
	})
	return svc, err
}

func providerOf(ctx context.Context, tx storage.Tx, id string) (model.Provider, error) {
	p, ok, err := tx.GetProvider(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Provider{}, err
	}
	if !ok {
		return model.Provider{}, apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return p, nil
}

func serviceOf(ctx context.Context, tx storage.Tx, id string) (model.Service, error) {
	svc, ok, err := tx.GetService(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Service{}, err
	}
	if !ok {
		return model.Service{}, apperr.New(apperr.ServiceNotFound, "service not found")
	}
	return svc, nil
}

func canManage(p model.Principal, providerID string) error {
	if p.Role == model.RoleAdmin && providerID != "" {
		return nil
	}
	if p.Role == model.RoleProvider && p.UserID != "" && p.UserID == providerID {
		return nil
	}
	return apperr.New(apperr.Forbidden, "not allowed")
}
