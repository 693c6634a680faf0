package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/agendei/libs/db"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

// clientLockNamespace is the first key of the advisory lock taken per client.
const clientLockNamespace = 7301

type Postgres struct {
	pool    *db.Pool
	onRetry func(attempt int, err error)
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OnRetry registers a hook called whenever a unit of work is rerun after a transient conflict.
func (p *Postgres) OnRetry(fn func(attempt int, err error)) *Postgres {
	p.onRetry = fn
	return p
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return p.pool.RetryTx(ctx, db.TxOptions{IsoLevel: pgx.ReadCommitted, OnRetry: p.onRetry}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports unique or exclusion constraint violations.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "23P01"
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetService(ctx context.Context, id string) (model.Service, bool, error) {
	var s model.Service
	err := t.tx.QueryRow(ctx, `
		SELECT s.id, COALESCE(s.business_id, ''), s.provider_id, s.title, s.description, s.price_minor,
			s.duration_minutes, s.active, COALESCE(b.active, true)
		FROM services s
		LEFT JOIN businesses b ON b.id = s.business_id
		WHERE s.id = $1
	`, id).Scan(&s.ID, &s.BusinessID, &s.ProviderID, &s.Title, &s.Description, &s.PriceMinor,
		&s.DurationMinutes, &s.Active, &s.BusinessActive)
	if IsNotFound(err) {
		return model.Service{}, false, nil
	}
	if err != nil {
		return model.Service{}, false, err
	}
	return s, true, nil
}

func (t *pgTx) GetProvider(ctx context.Context, id string) (model.Provider, bool, error) {
	var p model.Provider
	err := t.tx.QueryRow(ctx, `
		SELECT id, COALESCE(business_id, ''), name, lunch_start_minute, lunch_end_minute
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.BusinessID, &p.Name, &p.LunchStart, &p.LunchEnd)
	if IsNotFound(err) {
		return model.Provider{}, false, nil
	}
	if err != nil {
		return model.Provider{}, false, err
	}
	return p, true, nil
}

func (t *pgTx) GetWindow(ctx context.Context, providerID string, day model.Weekday) (model.AvailabilityWindow, bool, error) {
	w := model.AvailabilityWindow{ProviderID: providerID, Weekday: day}
	err := t.tx.QueryRow(ctx, `
		SELECT start_minute, end_minute, enabled
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, string(day)).Scan(&w.StartMinute, &w.EndMinute, &w.Enabled)
	if IsNotFound(err) {
		return model.AvailabilityWindow{}, false, nil
	}
	if err != nil {
		return model.AvailabilityWindow{}, false, err
	}
	return w, true, nil
}

func (t *pgTx) ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT weekday, start_minute, end_minute, enabled
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY array_position(ARRAY['DOMINGO','SEGUNDA','TERCA','QUARTA','QUINTA','SEXTA','SABADO'], weekday)
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityWindow
	for rows.Next() {
		w := model.AvailabilityWindow{ProviderID: providerID}
		var day string
		if err := rows.Scan(&day, &w.StartMinute, &w.EndMinute, &w.Enabled); err != nil {
			return nil, err
		}
		w.Weekday = model.Weekday(day)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *pgTx) ServiceTitleTaken(ctx context.Context, businessID, providerID, title, excludeID string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM services
			WHERE lower(title) = lower($3)
				AND id <> $4
				AND (
					($1 <> '' AND business_id = $1)
					OR ($1 = '' AND business_id IS NULL AND provider_id = $2)
				)
		)
	`, businessID, providerID, title, excludeID).Scan(&taken)
	return taken, err
}

func (t *pgTx) UpsertBusiness(ctx context.Context, b model.Business) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO businesses (id, name, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			active = EXCLUDED.active,
			updated_at = now()
	`, b.ID, b.Name, b.Active)
	return err
}

func (t *pgTx) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO providers (id, business_id, name)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (id) DO UPDATE
		SET business_id = EXCLUDED.business_id,
			name = EXCLUDED.name,
			updated_at = now()
	`, p.ID, p.BusinessID, p.Name)
	return err
}

func (t *pgTx) SetLunch(ctx context.Context, providerID string, start, end *int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE providers
		SET lunch_start_minute = $2,
			lunch_end_minute = $3,
			updated_at = now()
		WHERE id = $1
	`, providerID, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return nil
}

func (t *pgTx) UpsertWindow(ctx context.Context, w model.AvailabilityWindow) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availability_windows (provider_id, weekday, start_minute, end_minute, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			enabled = EXCLUDED.enabled,
			updated_at = now()
	`, w.ProviderID, string(w.Weekday), w.StartMinute, w.EndMinute, w.Enabled)
	if isForeignKeyViolation(err) {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return err
}

func (t *pgTx) SetWindowEnabled(ctx context.Context, providerID string, day model.Weekday, enabled bool) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_windows
		SET enabled = $3, updated_at = now()
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, string(day), enabled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) SaveService(ctx context.Context, s model.Service) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO services (id, business_id, provider_id, title, description, price_minor, duration_minutes, active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET business_id = EXCLUDED.business_id,
			provider_id = EXCLUDED.provider_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			price_minor = EXCLUDED.price_minor,
			duration_minutes = EXCLUDED.duration_minutes,
			active = EXCLUDED.active,
			updated_at = now()
	`, s.ID, s.BusinessID, s.ProviderID, s.Title, s.Description, s.PriceMinor, s.DurationMinutes, s.Active)
	switch {
	case IsConflict(err):
		return apperr.New(apperr.DuplicateTitle, "a service with this title already exists")
	case isForeignKeyViolation(err):
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return err
}

func (t *pgTx) LockProvider(ctx context.Context, providerID string) error {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&id)
	if IsNotFound(err) {
		return apperr.New(apperr.ProviderNotFound, "provider not found")
	}
	return err
}

func (t *pgTx) LockClient(ctx context.Context, clientID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, int32(clientLockNamespace), clientID)
	return err
}

func (t *pgTx) CountPending(ctx context.Context, clientID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE client_id = $1 AND status = 'PENDING'
	`, clientID).Scan(&n)
	return n, err
}

const appointmentColumns = `
	a.id, a.client_id, a.client_name, a.service_id, COALESCE(s.title, ''), a.provider_id, a.business_id,
	a.start_time, a.end_time, a.status, a.cancel_reason, a.concluded_at, a.cancelled_at, a.created_at, a.updated_at
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.ClientName,
		&a.ServiceID,
		&a.ServiceTitle,
		&a.ProviderID,
		&a.BusinessID,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.CancelReason,
		&a.ConcludedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = model.Status(status)
	return a, err
}

func (t *pgTx) queryAppointments(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) ListActive(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	return t.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.provider_id = $1
			AND a.status <> 'CANCELLED'
			AND a.start_time < $3
			AND a.end_time > $2
		ORDER BY a.start_time ASC
	`, providerID, from, to)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, client_id, client_name, service_id, provider_id, business_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, a.ID, a.ClientID, a.ClientName, a.ServiceID, a.ProviderID, a.BusinessID, a.StartTime, a.EndTime,
		string(a.Status), a.CreatedAt)
	if IsConflict(err) {
		return apperr.New(apperr.SlotConflict, "slot already taken")
	}
	return err
}

func (t *pgTx) GetAppointment(ctx context.Context, id string, forUpdate bool) (model.Appointment, bool, error) {
	sql := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.id = $1
	`
	if forUpdate {
		sql += ` FOR UPDATE OF a`
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, sql, id))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (t *pgTx) UpdateAppointmentSlot(ctx context.Context, a model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET service_id = $2,
			provider_id = $3,
			business_id = $4,
			start_time = $5,
			end_time = $6,
			updated_at = $7
		WHERE id = $1
	`, a.ID, a.ServiceID, a.ProviderID, a.BusinessID, a.StartTime, a.EndTime, a.UpdatedAt)
	if IsConflict(err) {
		return apperr.New(apperr.SlotConflict, "slot already taken")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.AppointmentNotFound, "appointment not found")
	}
	return nil
}

func (t *pgTx) TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time, reason string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3::text,
			updated_at = $4,
			concluded_at = CASE WHEN $3::text = 'CONCLUDED' THEN $4 ELSE concluded_at END,
			cancelled_at = CASE WHEN $3::text = 'CANCELLED' THEN $4 ELSE cancelled_at END,
			cancel_reason = CASE WHEN $3::text = 'CANCELLED' THEN $5 ELSE cancel_reason END
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) CancelPendingForClient(ctx context.Context, scopeID, clientID string, at time.Time, reason string) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			cancelled_at = $3,
			cancel_reason = $4,
			updated_at = $3
		WHERE client_id = $2
			AND status = 'PENDING'
			AND COALESCE(NULLIF(business_id, ''), provider_id) = $1
	`, scopeID, clientID, at, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.status = 'PENDING' AND a.end_time <= $1
		ORDER BY a.end_time ASC
		LIMIT $2
	`, now, limit)
}

func (t *pgTx) ListByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return t.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.client_id = $1
		ORDER BY a.start_time DESC
		LIMIT $2
	`, clientID, limit)
}

func (t *pgTx) ListByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return t.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.provider_id = $1
		ORDER BY a.start_time DESC
		LIMIT $2
	`, providerID, limit)
}

func (t *pgTx) IsBlocked(ctx context.Context, scopeID, clientID string) (bool, error) {
	var blocked bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_clients
			WHERE scope_id = $1 AND client_id = $2 AND active
		)
	`, scopeID, clientID).Scan(&blocked)
	return blocked, err
}

func (t *pgTx) UpsertBlock(ctx context.Context, b model.BlockedClient) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO blocked_clients (scope_id, client_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (scope_id, client_id) DO UPDATE
		SET active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, b.ScopeID, b.ClientID, b.Active, b.UpdatedAt)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
