// Package booking is the scheduling core: free-slot generation, the booking validation
// pipeline and the appointment lifecycle. Every operation runs as one unit of work against
// a storage.Store and takes the caller as an explicit model.Principal.
package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/agendei/libs/otel"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxPending     = 4
	DefaultSweepBatchSize = 200
	DefaultNotifyTimeout  = 10 * time.Second
)

// Notifier is told about every committed booking. Failures never affect the booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, appt model.Appointment) error
}

type Config struct {
	// Location is the fixed zone all wall-clock times are interpreted in.
	Location       *time.Location
	MaxPending     int
	SweepBatchSize int
	NotifyTimeout  time.Duration
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

type Engine struct {
	store    storage.Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Booking
	tracer   trace.Tracer

	loc           *time.Location
	maxPending    int
	batchSize     int
	notifyTimeout time.Duration
	now           func() time.Time

	inflight sync.WaitGroup
}

func NewEngine(store storage.Store, notifier Notifier, logger *slog.Logger, m *metrics.Booking, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:         store,
		notifier:      notifier,
		logger:        logger,
		metrics:       m,
		tracer:        otelx.Tracer("booking"),
		loc:           cfg.Location,
		maxPending:    cfg.MaxPending,
		batchSize:     cfg.SweepBatchSize,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
	}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Wait blocks until in-flight notifications have finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// begin opens a span for an engine operation; the returned func records the outcome.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "booking."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(apperr.CodeOf(err))
			if result == "" {
				result = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.String("booking.rejection", result))
			}
		}
		span.End()
		e.metrics.Operation(op, result, time.Since(started))
	}
}

// notifyConfirmed hands a committed booking to the notifier in the background.
func (e *Engine) notifyConfirmed(ctx context.Context, appt model.Appointment) {
	if e.notifier == nil {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.BookingConfirmed(nctx, appt); err != nil {
			e.logger.Warn("booking confirmation notify failed", "appointment_id", appt.ID, "client_id", appt.ClientID, "err", err)
		}
	}()
}
