// Package sweep periodically concludes appointments whose time has passed.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
)

type Sweeper interface {
	ConcludeExpiredAppointments(ctx context.Context) (booking.SweepResult, error)
}

type Worker struct {
	sweeper  Sweeper
	logger   *slog.Logger
	metrics  *metrics.Booking
	interval time.Duration
}

type WorkerConfig struct {
	Interval time.Duration
}

func NewWorker(sweeper Sweeper, logger *slog.Logger, m *metrics.Booking, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		sweeper:  sweeper,
		logger:   logger,
		metrics:  m,
		interval: cfg.Interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) (booking.SweepResult, error) {
	res, err := w.sweeper.ConcludeExpiredAppointments(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return res, err
	case err != nil:
		w.metrics.SweepRun("error")
		w.logger.Error("sweep failed", "err", err)
	case res.Failed > 0:
		w.metrics.SweepRun("partial")
	default:
		w.metrics.SweepRun("ok")
	}
	return res, err
}
