package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

// Memory is a process-local Store. Units of work run one at a time under a single mutex and
// a failed unit of work restores the state it started from.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type windowKey struct {
	providerID string
	day        model.Weekday
}

type blockKey struct {
	scopeID  string
	clientID string
}

type memState struct {
	businesses   map[string]model.Business
	providers    map[string]model.Provider
	services     map[string]model.Service
	windows      map[windowKey]model.AvailabilityWindow
	appointments map[string]model.Appointment
	blocks       map[blockKey]model.BlockedClient
}

func NewMemory() *Memory {
	return &Memory{state: memState{
		businesses:   map[string]model.Business{},
		providers:    map[string]model.Provider{},
		services:     map[string]model.Service{},
		windows:      map[windowKey]model.AvailabilityWindow{},
		appointments: map[string]model.Appointment{},
		blocks:       map[blockKey]model.BlockedClient{},
	}}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, &memTx{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s memState) clone() memState {
	return memState{
		businesses:   cloneMap(s.businesses),
		providers:    cloneMap(s.providers),
		services:     cloneMap(s.services),
		windows:      cloneMap(s.windows),
		appointments: cloneMap(s.appointments),
		blocks:       cloneMap(s.blocks),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Seed is the fixture format accepted by LoadSeed.
type Seed struct {
	Businesses []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Active *bool  `json:"active"`
	} `json:"businesses"`
	Providers []struct {
		ID         string `json:"id"`
		BusinessID string `json:"businessId"`
		Name       string `json:"name"`
	} `json:"providers"`
	Services []struct {
		ID              string `json:"id"`
		ProviderID      string `json:"providerId"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		PriceMinor      int64  `json:"priceMinor"`
		DurationMinutes int    `json:"durationMinutes"`
	} `json:"services"`
}

// LoadSeed loads catalog fixtures (businesses, providers, services) for running without a
// database or a catalog feed.
func (m *Memory) LoadSeed(ctx context.Context, r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	return m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, b := range seed.Businesses {
			active := b.Active == nil || *b.Active
			if err := tx.UpsertBusiness(ctx, model.Business{ID: b.ID, Name: b.Name, Active: active}); err != nil {
				return err
			}
		}
		for _, p := range seed.Providers {
			if err := tx.UpsertProvider(ctx, model.Provider{ID: p.ID, BusinessID: p.BusinessID, Name: p.Name}); err != nil {
				return err
			}
		}
		for _, s := range seed.Services {
			prov, ok, err := tx.GetProvider(ctx, s.ProviderID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("seed service %s: unknown provider %s", s.ID, s.ProviderID)
			}
			if err := tx.SaveService(ctx, model.Service{
				ID:              s.ID,
				BusinessID:      prov.BusinessID,
				ProviderID:      s.ProviderID,
				Title:           s.Title,
				Description:     s.Description,
				PriceMinor:      s.PriceMinor,
				DurationMinutes: s.DurationMinutes,
				Active:          true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

type memTx struct {
	s *memState
}

func (t *memTx) GetService(_ context.Context, id string) (model.Service, bool, error) {
	svc, ok := t.s.services[id]
	if !ok {
		return model.Service{}, false, nil
	}
	svc.BusinessActive = true
	if svc.BusinessID != "" {
		b, ok := t.s.businesses[svc.BusinessID]
		svc.BusinessActive = ok && b.Active
	}
	return svc, true, nil
}

func (t *memTx) GetProvider(_ context.Context, id string) (model.Provider, bool, error) {
	p, ok := t.s.providers[id]
	return p, ok, nil
}

func (t *memTx) GetWindow(_ context.Context, providerID string, day model.Weekday) (model.AvailabilityWindow, bool, error) {
	w, ok := t.s.windows[windowKey{providerID, day}]
	return w, ok, nil
}

func (t *memTx) ListWindows(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	for k, w := range t.s.windows {
		if k.providerID == providerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday.Index() < out[j].Weekday.Index() })
	return out, nil
}

func (t *memTx) ServiceTitleTaken(_ context.Context, businessID, providerID, title, excludeID string) (bool, error) {
	for _, svc := range t.s.services {
		if svc.ID == excludeID || !strings.EqualFold(svc.Title, title) {
			continue
		}
		if businessID != "" && svc.BusinessID == businessID {
			return true, nil
		}
		if businessID == "" && svc.BusinessID == "" && svc.ProviderID == providerID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpsertBusiness(_ context.Context, b model.Business) error {
	t.s.businesses[b.ID] = b
	return nil
}

func (t *memTx) UpsertProvider(_ context.Context, p model.Provider) error {
	if cur, ok := t.s.providers[p.ID]; ok {
		// Lunch is owned locally; the feed only carries identity.
		p.LunchStart, p.LunchEnd = cur.LunchStart, cur.LunchEnd
	}
	t.s.providers[p.ID] = p
	return nil
}

func (t *memTx) SetLunch(_ context.Context, providerID string, start, end *int) error {
	p, ok := t.s.providers[providerID]
	if !ok {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	p.LunchStart, p.LunchEnd = start, end
	t.s.providers[providerID] = p
	return nil
}

func (t *memTx) UpsertWindow(_ context.Context, w model.AvailabilityWindow) error {
	if _, ok := t.s.providers[w.ProviderID]; !ok {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	t.s.windows[windowKey{w.ProviderID, w.Weekday}] = w
	return nil
}

func (t *memTx) SetWindowEnabled(_ context.Context, providerID string, day model.Weekday, enabled bool) (bool, error) {
	k := windowKey{providerID, day}
	w, ok := t.s.windows[k]
	if !ok {
		return false, nil
	}
	w.Enabled = enabled
	t.s.windows[k] = w
	return true, nil
}

func (t *memTx) SaveService(_ context.Context, s model.Service) error {
	if _, ok := t.s.providers[s.ProviderID]; !ok {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	s.BusinessActive = false
	t.s.services[s.ID] = s
	return nil
}

func (t *memTx) LockProvider(_ context.Context, providerID string) error {
	if _, ok := t.s.providers[providerID]; !ok {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return nil
}

func (t *memTx) LockClient(context.Context, string) error {
	return nil
}

func (t *memTx) CountPending(_ context.Context, clientID string) (int, error) {
	n := 0
	for _, a := range t.s.appointments {
		if a.ClientID == clientID && a.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListActive(_ context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.s.appointments {
		if a.ProviderID != providerID || a.Status == model.StatusCancelled {
			continue
		}
		if a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, t.withTitle(a))
		}
	}
	sortByStart(out, false)
	return out, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a model.Appointment) error {
	if _, ok := t.s.appointments[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	if t.overlapsActive(a) {
		return apperr.New(apperr.SlotConflict, "slot already taken")
	}
	a.ServiceTitle = ""
	t.s.appointments[a.ID] = a
	return nil
}

func (t *memTx) GetAppointment(_ context.Context, id string, _ bool) (model.Appointment, bool, error) {
	a, ok := t.s.appointments[id]
	if !ok {
		return model.Appointment{}, false, nil
	}
	return t.withTitle(a), true, nil
}

func (t *memTx) UpdateAppointmentSlot(_ context.Context, a model.Appointment) error {
	cur, ok := t.s.appointments[a.ID]
	if !ok {
		return apperr.New(apperr.AppointmentNotFound, "appointment not found")
	}
	if t.overlapsActive(a) {
		return apperr.New(apperr.SlotConflict, "slot already taken")
	}
	cur.ServiceID = a.ServiceID
	cur.ProviderID = a.ProviderID
	cur.BusinessID = a.BusinessID
	cur.StartTime = a.StartTime
	cur.EndTime = a.EndTime
	cur.UpdatedAt = a.UpdatedAt
	t.s.appointments[a.ID] = cur
	return nil
}

func (t *memTx) TransitionStatus(_ context.Context, id string, from, to model.Status, at time.Time, reason string) (bool, error) {
	a, ok := t.s.appointments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	switch to {
	case model.StatusConcluded:
		a.ConcludedAt = &at
	case model.StatusCancelled:
		a.CancelledAt = &at
		a.CancelReason = reason
	}
	t.s.appointments[id] = a
	return true, nil
}

func (t *memTx) CancelPendingForClient(ctx context.Context, scopeID, clientID string, at time.Time, reason string) (int, error) {
	n := 0
	for id, a := range t.s.appointments {
		if a.ClientID != clientID || a.Status != model.StatusPending {
			continue
		}
		if model.BlockScope(a.BusinessID, a.ProviderID) != scopeID {
			continue
		}
		if ok, _ := t.TransitionStatus(ctx, id, model.StatusPending, model.StatusCancelled, at, reason); ok {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.s.appointments {
		if a.Status == model.StatusPending && !a.EndTime.After(now) {
			out = append(out, t.withTitle(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return truncate(out, limit), nil
}

func (t *memTx) ListByClient(_ context.Context, clientID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.s.appointments {
		if a.ClientID == clientID {
			out = append(out, t.withTitle(a))
		}
	}
	sortByStart(out, true)
	return truncate(out, limit), nil
}

func (t *memTx) ListByProvider(_ context.Context, providerID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range t.s.appointments {
		if a.ProviderID == providerID {
			out = append(out, t.withTitle(a))
		}
	}
	sortByStart(out, true)
	return truncate(out, limit), nil
}

func (t *memTx) IsBlocked(_ context.Context, scopeID, clientID string) (bool, error) {
	b, ok := t.s.blocks[blockKey{scopeID, clientID}]
	return ok && b.Active, nil
}

func (t *memTx) UpsertBlock(_ context.Context, b model.BlockedClient) error {
	k := blockKey{b.ScopeID, b.ClientID}
	if cur, ok := t.s.blocks[k]; ok {
		b.CreatedAt = cur.CreatedAt
	}
	t.s.blocks[k] = b
	return nil
}

// overlapsActive mirrors the database exclusion constraint.
func (t *memTx) overlapsActive(a model.Appointment) bool {
	for _, other := range t.s.appointments {
		if other.ID == a.ID || other.ProviderID != a.ProviderID || other.Status == model.StatusCancelled {
			continue
		}
		if other.StartTime.Before(a.EndTime) && a.StartTime.Before(other.EndTime) {
			return true
		}
	}
	return false
}

func (t *memTx) withTitle(a model.Appointment) model.Appointment {
	if svc, ok := t.s.services[a.ServiceID]; ok {
		a.ServiceTitle = svc.Title
	}
	return a
}

func sortByStart(appts []model.Appointment, desc bool) {
	sort.Slice(appts, func(i, j int) bool {
		if desc {
			return appts[i].StartTime.After(appts[j].StartTime)
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

func truncate(appts []model.Appointment, limit int) []model.Appointment {
	if limit > 0 && len(appts) > limit {
		return appts[:limit]
	}
	return appts
}
