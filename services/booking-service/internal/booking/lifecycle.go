package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

const blockedCancelReason = "client blocked"

// Conclude marks a pending appointment as attended. Only its provider or an admin may do it.
func (e *Engine) Conclude(ctx context.Context, p model.Principal, id string) (model.Appointment, error) {
	return e.finish(ctx, "conclude", p, id, model.StatusConcluded, "", model.RoleProvider, model.RoleAdmin)
}

// Cancel cancels a pending appointment on behalf of its client, its provider or an admin.
func (e *Engine) Cancel(ctx context.Context, p model.Principal, id, reason string) (model.Appointment, error) {
	return e.finish(ctx, "cancel", p, id, model.StatusCancelled, strings.TrimSpace(reason),
		model.RoleClient, model.RoleProvider, model.RoleAdmin)
}

func (e *Engine) finish(ctx context.Context, op string, p model.Principal, id string, to model.Status, reason string, roles ...model.Role) (appt model.Appointment, err error) {
	ctx, done := e.begin(ctx, op, attribute.String("appointment.id", id))
	defer func() { done(err) }()

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := loadAppointment(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := authorize(p, cur, roles...); err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return apperr.New(apperr.CannotModifyFinalized, "appointment is already "+string(cur.Status))
		}
		now := e.now()
		ok, err := tx.TransitionStatus(ctx, cur.ID, model.StatusPending, to, now, reason)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CannotModifyFinalized, "appointment is no longer pending")
		}
		cur.Status = to
		cur.UpdatedAt = now
		switch to {
		case model.StatusConcluded:
			cur.ConcludedAt = &now
		case model.StatusCancelled:
			cur.CancelledAt = &now
			cur.CancelReason = reason
		}
		appt = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	e.metrics.Transition(string(to))
	e.logger.Info("appointment status changed", "appointment_id", appt.ID, "status", appt.Status, "by", p.UserID)
	return appt, nil
}

// SweepResult counts what one expiry sweep did.
type SweepResult struct {
	Concluded int
	// Skipped rows changed state between listing and update.
	Skipped int
	Failed  int
}

// ConcludeExpiredAppointments concludes every PENDING appointment whose end time has passed.
// Each appointment is updated in its own unit of work and only while still PENDING, so the
// sweep is safe to run concurrently with itself and with explicit transitions; a failure on
// one row is logged and does not stop the others.
func (e *Engine) ConcludeExpiredAppointments(ctx context.Context) (res SweepResult, err error) {
	ctx, done := e.begin(ctx, "sweep")
	defer func() { done(err) }()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		now := e.now()
		var due []model.Appointment
		err := e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			due, err = tx.ListExpiredPending(ctx, now, e.batchSize)
			return err
		})
		if err != nil {
			return res, err
		}

		progressed := 0
		for _, a := range due {
			var ok bool
			err := e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				var err error
				ok, err = tx.TransitionStatus(ctx, a.ID, model.StatusPending, model.StatusConcluded, now, "")
				return err
			})
			switch {
			case err != nil:
				res.Failed++
				e.logger.Error("sweep conclude failed", "appointment_id", a.ID, "err", err)
			case ok:
				res.Concluded++
				progressed++
				e.metrics.Transition(string(model.StatusConcluded))
			default:
				res.Skipped++
				progressed++
			}
		}
		if len(due) < e.batchSize || progressed == 0 {
			break
		}
	}

	e.metrics.SweepHandled("concluded", res.Concluded)
	e.metrics.SweepHandled("skipped", res.Skipped)
	e.metrics.SweepHandled("failed", res.Failed)
	if res.Concluded > 0 || res.Failed > 0 {
		e.logger.Info("expiry sweep finished", "concluded", res.Concluded, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// BlockClient bars clientID from booking with the provider's business (or the provider alone
// when it has no business) and cancels the client's pending appointments in that scope.
// It returns how many appointments were cancelled.
func (e *Engine) BlockClient(ctx context.Context, p model.Principal, providerID, clientID string) (cancelled int, err error) {
	ctx, done := e.begin(ctx, "block_client",
		attribute.String("provider.id", providerID),
		attribute.String("client.id", clientID),
	)
	defer func() { done(err) }()

	if err := canManageProvider(p, providerID); err != nil {
		return 0, err
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return 0, apperr.New(apperr.InvalidInput, "clientId is required")
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		provider, err := loadProvider(ctx, tx, providerID)
		if err != nil {
			return err
		}
		now := e.now()
		scope := provider.BlockScope()
		if err := tx.UpsertBlock(ctx, model.BlockedClient{
			ScopeID:   scope,
			ClientID:  clientID,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		cancelled, err = tx.CancelPendingForClient(ctx, scope, clientID, now, blockedCancelReason)
		return err
	})
	if err != nil {
		return 0, err
	}
	for i := 0; i < cancelled; i++ {
		e.metrics.Transition(string(model.StatusCancelled))
	}
	e.logger.Info("client blocked", "provider_id", providerID, "client_id", clientID, "cancelled", cancelled)
	return cancelled, nil
}

// UnblockClient lifts a block. Appointments cancelled by the block stay cancelled.
func (e *Engine) UnblockClient(ctx context.Context, p model.Principal, providerID, clientID string) (err error) {
	ctx, done := e.begin(ctx, "unblock_client",
		attribute.String("provider.id", providerID),
		attribute.String("client.id", clientID),
	)
	defer func() { done(err) }()

	if err := canManageProvider(p, providerID); err != nil {
		return err
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return apperr.New(apperr.InvalidInput, "clientId is required")
	}
	return e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		provider, err := loadProvider(ctx, tx, providerID)
		if err != nil {
			return err
		}
		now := e.now()
		return tx.UpsertBlock(ctx, model.BlockedClient{
			ScopeID:   provider.BlockScope(),
			ClientID:  clientID,
			Active:    false,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
}

const listLimit = 200

// ListClientAppointments returns the caller's own appointments, newest first.
func (e *Engine) ListClientAppointments(ctx context.Context, p model.Principal) (out []model.Appointment, err error) {
	ctx, done := e.begin(ctx, "list_client")
	defer func() { done(err) }()

	if !p.Is(model.RoleClient) {
		return nil, apperr.New(apperr.Forbidden, "only clients have bookings")
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListByClient(ctx, p.UserID, listLimit)
		return err
	})
	return out, err
}

// ListProviderAppointments returns the calling provider's agenda, newest first.
func (e *Engine) ListProviderAppointments(ctx context.Context, p model.Principal) (out []model.Appointment, err error) {
	ctx, done := e.begin(ctx, "list_provider")
	defer func() { done(err) }()

	if !p.Is(model.RoleProvider) {
		return nil, apperr.New(apperr.Forbidden, "only providers have an agenda")
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListByProvider(ctx, p.UserID, listLimit)
		return err
	})
	return out, err
}

func (e *Engine) GetAppointment(ctx context.Context, p model.Principal, id string) (appt model.Appointment, err error) {
	ctx, done := e.begin(ctx, "get_appointment", attribute.String("appointment.id", id))
	defer func() { done(err) }()

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := loadAppointment(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := authorize(p, a, model.RoleClient, model.RoleProvider, model.RoleAdmin); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// canManageProvider admits the provider itself and admins.
func canManageProvider(p model.Principal, providerID string) error {
	if p.Role == model.RoleAdmin {
		return nil
	}
	if p.Role == model.RoleProvider && p.UserID == strings.TrimSpace(providerID) {
		return nil
	}
	return apperr.New(apperr.Forbidden, "not allowed")
}

// Now reports the engine clock in its location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}
